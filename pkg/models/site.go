package models

// Built-in fallbacks applied when neither the site nor the document defaults set a value.
const (
	DefaultThreshold      = 0.05
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultDelaySeconds   = 2
)

// Viewport is the browser window size used for a capture.
type Viewport struct {
	Width  int `json:"width" yaml:"width" validate:"min=1,max=10000"`
	Height int `json:"height" yaml:"height" validate:"min=1,max=10000"`
}

// SiteConfig is one user-edited entry of the sites document.
type SiteConfig struct {
	ID        string    `json:"id" yaml:"id" validate:"required,max=128,excludesall=/\\?#"`
	Name      string    `json:"name" yaml:"name"`
	URL       string    `json:"url" yaml:"url" validate:"required,url,httpurl"`
	Threshold *float64  `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Viewport  *Viewport `json:"viewport,omitempty" yaml:"viewport,omitempty" validate:"omitempty"`
	Delay     *float64  `json:"delay,omitempty" yaml:"delay,omitempty" validate:"omitempty,gte=0,lte=60"`
}

// SiteDefaults are document-level overrides of the built-in fallbacks.
type SiteDefaults struct {
	Threshold *float64  `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Viewport  *Viewport `json:"viewport,omitempty" yaml:"viewport,omitempty" validate:"omitempty"`
	Delay     *float64  `json:"delay,omitempty" yaml:"delay,omitempty" validate:"omitempty,gte=0,lte=60"`
}

// SitesDocument is the configuration document listing the monitored sites in order.
type SitesDocument struct {
	Sites    []SiteConfig `json:"sites" yaml:"sites" validate:"unique=ID,dive"`
	Defaults SiteDefaults `json:"defaults" yaml:"defaults"`
}

// CheckSettings are the effective per-check values after merging overrides.
type CheckSettings struct {
	Threshold float64
	Viewport  Viewport
	Delay     float64
}

// Find returns the site with the given id.
func (d *SitesDocument) Find(id string) (SiteConfig, bool) {
	for _, site := range d.Sites {
		if site.ID == id {
			return site, true
		}
	}
	return SiteConfig{}, false
}

// Settings merges site overrides over document defaults over built-in fallbacks.
func (d *SitesDocument) Settings(site SiteConfig) CheckSettings {
	settings := CheckSettings{
		Threshold: DefaultThreshold,
		Viewport:  Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Delay:     DefaultDelaySeconds,
	}

	if d.Defaults.Threshold != nil {
		settings.Threshold = *d.Defaults.Threshold
	}
	if d.Defaults.Viewport != nil {
		settings.Viewport = *d.Defaults.Viewport
	}
	if d.Defaults.Delay != nil {
		settings.Delay = *d.Defaults.Delay
	}

	if site.Threshold != nil {
		settings.Threshold = *site.Threshold
	}
	if site.Viewport != nil {
		settings.Viewport = *site.Viewport
	}
	if site.Delay != nil {
		settings.Delay = *site.Delay
	}

	return settings
}
