package model

import "time"

// SettingKey names a persisted setting. The string form is the key used in
// both settings backends.
type SettingKey string

const (
	SettingHost                      SettingKey = "host"
	SettingBasePath                  SettingKey = "base_path"
	SettingScheme                    SettingKey = "scheme"
	SettingPort                      SettingKey = "port"
	SettingDefaultChatModel          SettingKey = "default_model.chat"
	SettingDefaultImageModel         SettingKey = "default_model.image"
	SettingDefaultSpeechModel        SettingKey = "default_model.tts"
	SettingDefaultTranscriptionModel SettingKey = "default_model.transcription"
	SettingDefaultVoice              SettingKey = "default_voice"
)

// SettingKind is the value type of a setting.
type SettingKind int

const (
	SettingKindString SettingKind = iota
	SettingKindInt
)

// SettingSpec describes a setting's type and the value reads return when
// neither backend holds it.
type SettingSpec struct {
	Key        SettingKey
	Kind       SettingKind
	Default    string
	DefaultInt int
	// Endpoint marks keys that change the connection target. Writing one
	// invalidates the outbound client and the model catalog.
	Endpoint bool
}

var settingSpecs = []SettingSpec{
	{Key: SettingHost, Kind: SettingKindString, Endpoint: true},
	{Key: SettingBasePath, Kind: SettingKindString, Endpoint: true},
	{Key: SettingScheme, Kind: SettingKindString, Default: "https", Endpoint: true},
	{Key: SettingPort, Kind: SettingKindInt, Endpoint: true},
	{Key: SettingDefaultChatModel, Kind: SettingKindString},
	{Key: SettingDefaultImageModel, Kind: SettingKindString},
	{Key: SettingDefaultSpeechModel, Kind: SettingKindString},
	{Key: SettingDefaultTranscriptionModel, Kind: SettingKindString},
	{Key: SettingDefaultVoice, Kind: SettingKindString, Default: "alloy"},
}

// SettingSpecs returns the specs of every known setting in a stable order.
func SettingSpecs() []SettingSpec {
	out := make([]SettingSpec, len(settingSpecs))
	copy(out, settingSpecs)
	return out
}

// LookupSetting returns the spec for key, or false for unknown keys.
func LookupSetting(key SettingKey) (SettingSpec, bool) {
	for _, s := range settingSpecs {
		if s.Key == key {
			return s, true
		}
	}
	return SettingSpec{}, false
}

// SettingSource tells which backend served a read.
type SettingSource string

const (
	SettingSourceRemote  SettingSource = "remote"
	SettingSourceLocal   SettingSource = "local"
	SettingSourceDefault SettingSource = "default"
)

// SettingValue is the effective value of one setting.
type SettingValue struct {
	Key    SettingKey
	Value  string
	Source SettingSource
}

// ChangeReason classifies a change reported by the remote settings backend.
type ChangeReason string

const (
	ChangeReasonServer         ChangeReason = "server_change"
	ChangeReasonInitialSync    ChangeReason = "initial_sync"
	ChangeReasonAccountChange  ChangeReason = "account_change"
	ChangeReasonQuotaViolation ChangeReason = "quota_violation"
)

// RemoteChange is emitted by the remote settings backend when its contents
// changed outside this process. An empty Keys slice means "unknown keys".
type RemoteChange struct {
	Reason ChangeReason
	Keys   []SettingKey
}

// SettingsChange is re-announced to subscribers after an external change.
type SettingsChange struct {
	Reason ChangeReason
	Keys   []SettingKey
	At     time.Time
}

// TouchesEndpoint reports whether the change may affect the connection
// target. A change with no key list is assumed to touch everything.
func (c SettingsChange) TouchesEndpoint() bool {
	if len(c.Keys) == 0 {
		return true
	}
	for _, k := range c.Keys {
		if spec, ok := LookupSetting(k); ok && spec.Endpoint {
			return true
		}
	}
	return false
}
