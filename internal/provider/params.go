package provider

// Per-provider parameter structs. The dispatch layer decodes the
// request's free-form options into the struct for the selected
// (endpoint, provider) pair, validates it, and carries it opaquely
// through the queue payload as JSON.

// ProviderAParams are the knobs for provider_a image generation.
type ProviderAParams struct {
	Size    string `json:"size,omitempty" validate:"omitempty,oneof=1024x1024 1792x1024 1024x1792"`
	Quality string `json:"quality,omitempty" validate:"omitempty,oneof=standard hd"`
	N       int    `json:"n,omitempty" validate:"omitempty,min=1,max=4"`
}

// ProviderBParams cover provider_b editing operations. Strength only
// applies to image-to-image and sketch-to-image.
type ProviderBParams struct {
	Strength     float64 `json:"strength,omitempty" validate:"omitempty,gte=0,lte=1"`
	OutputFormat string  `json:"output_format,omitempty" validate:"omitempty,oneof=png jpeg webp"`
	GrowMask     int     `json:"grow_mask,omitempty" validate:"omitempty,min=0,max=100"`
}

// ProviderCParams select the stylization for provider_c.
type ProviderCParams struct {
	Substyle string `json:"substyle,omitempty" validate:"omitempty,oneof=realistic digital_art vector_art icon"`
	N        int    `json:"n,omitempty" validate:"omitempty,min=1,max=4"`
}

// ProviderDParams tune provider_d sampling.
type ProviderDParams struct {
	Guidance float64 `json:"guidance,omitempty" validate:"omitempty,gte=1.5,lte=5"`
	Steps    int     `json:"steps,omitempty" validate:"omitempty,min=1,max=50"`
}

// ModelParams apply to provider_e 3D generation.
type ModelParams struct {
	Topology       string `json:"topology,omitempty" validate:"omitempty,oneof=quad triangle"`
	TargetPolycount int   `json:"target_polycount,omitempty" validate:"omitempty,min=1000,max=300000"`
	Texture        bool   `json:"texture,omitempty"`
}

// RefineParams apply to provider_e model refinement.
type RefineParams struct {
	TextureResolution int `json:"texture_resolution,omitempty" validate:"omitempty,oneof=1024 2048 4096"`
}

// DownscaleParams drive local image downscaling. Bounds per the public
// contract: max_size_mb in [0.1, 20.0].
type DownscaleParams struct {
	MaxSizeMB       float64 `json:"max_size_mb" validate:"required,gte=0.1,lte=20"`
	AspectRatioMode string  `json:"aspect_ratio_mode,omitempty" validate:"omitempty,oneof=original square"`
	OutputFormat    string  `json:"output_format,omitempty" validate:"omitempty,oneof=original jpeg png"`
}
