package shrink

import (
	"regexp"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default policy values.
const (
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1920
	DefaultQuality   = 82
)

// DefaultAllowedMimes are the types eligible for resizing.
var DefaultAllowedMimes = []string{"image/png", "image/gif", "image/jpeg"}

var qualityPattern = regexp.MustCompile(`^(100|[1-9][0-9]?)$`)

// ParseQuality validates a JPEG quality value. Anything outside 1-100 yields
// DefaultQuality.
func ParseQuality(value string) int {
	if !qualityPattern.MatchString(value) {
		return DefaultQuality
	}
	q, err := strconv.Atoi(value)
	if err != nil {
		return DefaultQuality
	}
	return q
}

// Quality is a JPEG quality level that falls back to DefaultQuality when the
// configured value is invalid.
type Quality int

// UnmarshalYAML applies ParseQuality to the raw scalar.
func (q *Quality) UnmarshalYAML(value *yaml.Node) error {
	*q = Quality(ParseQuality(value.Value))
	return nil
}

// Key names a single policy setting.
type Key string

// Setting keys.
const (
	KeyMaxWidth        Key = "max_width"
	KeyMaxHeight       Key = "max_height"
	KeyMaxWidthLibrary Key = "max_width_library"
	KeyMaxHeightLib    Key = "max_height_library"
	KeyMaxWidthOther   Key = "max_width_other"
	KeyMaxHeightOther  Key = "max_height_other"
	KeyQuality         Key = "quality"
	KeyBMPToJPG        Key = "bmp_to_jpg"
	KeyPNGToJPG        Key = "png_to_jpg"
	KeyDeleteOriginals Key = "delete_originals"
	KeyAlwaysResizeJPG Key = "always_resize_jpg"
	KeyDeepScan        Key = "deep_scan"
	KeyCrop            Key = "crop"
	KeySkipAlpha       Key = "skip_alpha"
	KeyAllowedMimes    Key = "allowed_mimes"
)

var defaultValues = map[Key]any{
	KeyMaxWidth:        DefaultMaxWidth,
	KeyMaxHeight:       DefaultMaxHeight,
	KeyMaxWidthLibrary: DefaultMaxWidth,
	KeyMaxHeightLib:    DefaultMaxHeight,
	KeyMaxWidthOther:   DefaultMaxWidth,
	KeyMaxHeightOther:  DefaultMaxHeight,
	KeyQuality:         DefaultQuality,
	KeyBMPToJPG:        true,
	KeyPNGToJPG:        false,
	KeyDeleteOriginals: false,
	KeyAlwaysResizeJPG: true,
	KeyDeepScan:        false,
	KeyCrop:            false,
	KeySkipAlpha:       true,
	KeyAllowedMimes:    DefaultAllowedMimes,
}

// Layer is one level of settings. Nil fields are unset.
type Layer struct {
	// OverrideSite is only honoured on the network layer.
	OverrideSite bool `yaml:"override_site,omitempty"`

	MaxWidth         *int     `yaml:"max_width,omitempty" validate:"omitempty,min=0"`
	MaxHeight        *int     `yaml:"max_height,omitempty" validate:"omitempty,min=0"`
	MaxWidthLibrary  *int     `yaml:"max_width_library,omitempty" validate:"omitempty,min=0"`
	MaxHeightLibrary *int     `yaml:"max_height_library,omitempty" validate:"omitempty,min=0"`
	MaxWidthOther    *int     `yaml:"max_width_other,omitempty" validate:"omitempty,min=0"`
	MaxHeightOther   *int     `yaml:"max_height_other,omitempty" validate:"omitempty,min=0"`
	Quality          *Quality `yaml:"quality,omitempty"`
	BMPToJPG         *bool    `yaml:"bmp_to_jpg,omitempty"`
	PNGToJPG         *bool    `yaml:"png_to_jpg,omitempty"`
	DeleteOriginals  *bool    `yaml:"delete_originals,omitempty"`
	AlwaysResizeJPG  *bool    `yaml:"always_resize_jpg,omitempty"`
	DeepScan         *bool    `yaml:"deep_scan,omitempty"`
	Crop             *bool    `yaml:"crop,omitempty"`
	SkipAlpha        *bool    `yaml:"skip_alpha,omitempty"`
	AllowedMimes     []string `yaml:"allowed_mimes,omitempty"`
}

// lookup returns the layer's value for key and whether it is set.
func (l Layer) lookup(key Key) (any, bool) {
	ints := map[Key]*int{
		KeyMaxWidth:        l.MaxWidth,
		KeyMaxHeight:       l.MaxHeight,
		KeyMaxWidthLibrary: l.MaxWidthLibrary,
		KeyMaxHeightLib:    l.MaxHeightLibrary,
		KeyMaxWidthOther:   l.MaxWidthOther,
		KeyMaxHeightOther:  l.MaxHeightOther,
	}
	if v, ok := ints[key]; ok {
		if v == nil {
			return nil, false
		}
		return *v, true
	}

	bools := map[Key]*bool{
		KeyBMPToJPG:        l.BMPToJPG,
		KeyPNGToJPG:        l.PNGToJPG,
		KeyDeleteOriginals: l.DeleteOriginals,
		KeyAlwaysResizeJPG: l.AlwaysResizeJPG,
		KeyDeepScan:        l.DeepScan,
		KeyCrop:            l.Crop,
		KeySkipAlpha:       l.SkipAlpha,
	}
	if v, ok := bools[key]; ok {
		if v == nil {
			return nil, false
		}
		return *v, true
	}

	switch key {
	case KeyQuality:
		if l.Quality == nil {
			return nil, false
		}
		return int(*l.Quality), true
	case KeyAllowedMimes:
		if l.AllowedMimes == nil {
			return nil, false
		}
		return slices.Clone(l.AllowedMimes), true
	}
	return nil, false
}

// Resolve returns the effective value of key. The network layer wins when it
// sets OverrideSite, otherwise the site layer is used. Unset keys fall back to
// the built-in default.
func Resolve(key Key, site, network Layer) any {
	layer := site
	if network.OverrideSite {
		layer = network
	}
	if v, ok := layer.lookup(key); ok {
		return v
	}
	return defaultValues[key]
}

func resolveInt(key Key, site, network Layer) int {
	v, _ := Resolve(key, site, network).(int)
	return v
}

func resolveBool(key Key, site, network Layer) bool {
	v, _ := Resolve(key, site, network).(bool)
	return v
}

// Settings holds both configuration layers.
type Settings struct {
	Site    Layer `yaml:"site"`
	Network Layer `yaml:"network"`
}

// Policy is the immutable set of options used while handling one image.
type Policy struct {
	MaxWidth        int      `yaml:"max_width"`
	MaxHeight       int      `yaml:"max_height"`
	Quality         int      `yaml:"quality"`
	BMPToJPG        bool     `yaml:"bmp_to_jpg"`
	PNGToJPG        bool     `yaml:"png_to_jpg"`
	DeleteOriginals bool     `yaml:"delete_originals"`
	AlwaysResizeJPG bool     `yaml:"always_resize_jpg"`
	DeepScan        bool     `yaml:"deep_scan"`
	Crop            bool     `yaml:"crop"`
	SkipAlpha       bool     `yaml:"skip_alpha"`
	AllowedMimes    []string `yaml:"allowed_mimes"`
}

// Snapshot resolves every key once for the given source. Sources other than
// library and other use the post limits.
func (s Settings) Snapshot(source Source) Policy {
	widthKey, heightKey := KeyMaxWidth, KeyMaxHeight
	switch source {
	case SourceLibrary:
		widthKey, heightKey = KeyMaxWidthLibrary, KeyMaxHeightLib
	case SourceOther:
		widthKey, heightKey = KeyMaxWidthOther, KeyMaxHeightOther
	}

	mimes, _ := Resolve(KeyAllowedMimes, s.Site, s.Network).([]string)

	return Policy{
		MaxWidth:        resolveInt(widthKey, s.Site, s.Network),
		MaxHeight:       resolveInt(heightKey, s.Site, s.Network),
		Quality:         resolveInt(KeyQuality, s.Site, s.Network),
		BMPToJPG:        resolveBool(KeyBMPToJPG, s.Site, s.Network),
		PNGToJPG:        resolveBool(KeyPNGToJPG, s.Site, s.Network),
		DeleteOriginals: resolveBool(KeyDeleteOriginals, s.Site, s.Network),
		AlwaysResizeJPG: resolveBool(KeyAlwaysResizeJPG, s.Site, s.Network),
		DeepScan:        resolveBool(KeyDeepScan, s.Site, s.Network),
		Crop:            resolveBool(KeyCrop, s.Site, s.Network),
		SkipAlpha:       resolveBool(KeySkipAlpha, s.Site, s.Network),
		AllowedMimes:    slices.Clone(mimes),
	}
}

// Allows reports whether mime is on the allow-list. The comparison is case-sensitive.
func (p Policy) Allows(mime string) bool {
	return slices.Contains(p.AllowedMimes, mime)
}

// SettingsSource supplies the current settings. It is consulted once per image.
type SettingsSource interface {
	Settings() (Settings, error)
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

// Settings returns the fixed settings.
func (s StaticSettings) Settings() (Settings, error) {
	return Settings(s), nil
}
