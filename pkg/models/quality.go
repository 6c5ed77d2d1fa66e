package models

// QualityProfile defines the target box and bitrate cap of a playback rendition
type QualityProfile struct {
	Name         string `json:"name" validate:"required"`
	TargetWidth  int    `json:"target_width" validate:"gt=0"`
	TargetHeight int    `json:"target_height" validate:"gt=0"`
	BitrateKbps  int    `json:"bitrate_kbps" validate:"gt=0"`
}

// Upscales reports whether encoding the source at this profile would enlarge it
func (p QualityProfile) Upscales(src *SourceMedia) bool {
	return p.TargetWidth > src.Width || p.TargetHeight > src.Height
}

// Standard playback profiles
var (
	// Quality1080p represents Full HD playback
	Quality1080p = QualityProfile{
		Name:         "1080p",
		TargetWidth:  1920,
		TargetHeight: 1080,
		BitrateKbps:  5000,
	}

	// Quality720p represents HD playback
	Quality720p = QualityProfile{
		Name:         "720p",
		TargetWidth:  1280,
		TargetHeight: 720,
		BitrateKbps:  2800,
	}

	// Quality480p represents SD playback
	Quality480p = QualityProfile{
		Name:         "480p",
		TargetWidth:  854,
		TargetHeight: 480,
		BitrateKbps:  1400,
	}

	// Quality360p represents low bandwidth playback
	Quality360p = QualityProfile{
		Name:         "360p",
		TargetWidth:  640,
		TargetHeight: 360,
		BitrateKbps:  800,
	}
)

// DefaultQualityLadder returns the profiles used when a trigger names none
func DefaultQualityLadder() []QualityProfile {
	return []QualityProfile{
		Quality1080p,
		Quality720p,
		Quality480p,
		Quality360p,
	}
}

// FindQualityProfile returns a profile from the given list by name
func FindQualityProfile(profiles []QualityProfile, name string) (QualityProfile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return QualityProfile{}, false
}
