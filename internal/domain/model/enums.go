package model

// Feature is a provider capability that can be gated and that has its own
// default model.
type Feature string

const (
	FeatureChat          Feature = "chat"
	FeatureImage         Feature = "image"
	FeatureSpeech        Feature = "tts"
	FeatureTranscription Feature = "transcription"
)

// Features lists every feature in display order.
func Features() []Feature {
	return []Feature{FeatureChat, FeatureImage, FeatureSpeech, FeatureTranscription}
}

// ParseFeature maps a name to a Feature. The second return is false for
// unknown names.
func ParseFeature(s string) (Feature, bool) {
	for _, f := range Features() {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// OverrideSetting returns the setting key holding the user's explicit default
// model for the feature.
func (f Feature) OverrideSetting() SettingKey {
	switch f {
	case FeatureImage:
		return SettingDefaultImageModel
	case FeatureSpeech:
		return SettingDefaultSpeechModel
	case FeatureTranscription:
		return SettingDefaultTranscriptionModel
	default:
		return SettingDefaultChatModel
	}
}

// RequiresOfficialEndpoint reports whether the feature is only guaranteed to
// work against the provider's canonical endpoint.
func (f Feature) RequiresOfficialEndpoint() bool {
	return f != FeatureChat
}

// Label is the human-readable name used in error messages.
func (f Feature) Label() string {
	switch f {
	case FeatureImage:
		return "image generation"
	case FeatureSpeech:
		return "speech synthesis"
	case FeatureTranscription:
		return "transcription"
	default:
		return "chat"
	}
}
