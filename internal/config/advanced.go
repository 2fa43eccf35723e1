// SPDX-License-Identifier: MIT

package config

import "strings"

// SplitArgv splits a raw "input_param"/"output_param" string into argv
// tokens on whitespace. The upstream engine shell-splits these with the
// Rust `shlex` crate; nothing in this module's dependency set provides
// quote-aware shell-word splitting, so plain whitespace splitting is used
// instead (operators needing a literal space in one token aren't served,
// but none of the packaged example configs ever require one).
func SplitArgv(s string) []string {
	return strings.Fields(s)
}

// Advanced exposes raw ffmpeg command and filter fragments for operators who
// need control beyond Processing's structured fields. Fields mirror the
// upstream engine's advanced-config surface field-for-field so operators
// migrating a config keep the same names.
type Advanced struct {
	Decoder DecoderConfig `yaml:"decoder" koanf:"decoder"`
	Encoder EncoderConfig `yaml:"encoder" koanf:"encoder"`
	Ingest  IngestConfig  `yaml:"ingest" koanf:"ingest"`
	Filters Filters       `yaml:"filters" koanf:"filters"`
}

// DecoderConfig overrides the decoder child process's argv fragments.
type DecoderConfig struct {
	InputParam  string `yaml:"input_param" koanf:"input_param"`
	OutputParam string `yaml:"output_param" koanf:"output_param"`
}

// EncoderConfig overrides the encoder child process's input argv fragment.
type EncoderConfig struct {
	InputParam string `yaml:"input_param" koanf:"input_param"`
}

// IngestConfig overrides the ingest listener's input argv fragment.
type IngestConfig struct {
	InputParam string `yaml:"input_param" koanf:"input_param"`
}

// Filters holds one raw ffmpeg filter expression per filter-graph stage. A
// value is used verbatim in place of the stage the filter graph builder
// would otherwise synthesize (see internal/filter), unless it is prefixed
// with "+", in which case it is appended after the synthesized stage
// instead of replacing it — this resolves the filter-override Open
// Question in favor of additive overrides being opt-in per field.
type Filters struct {
	Deinterlace string `yaml:"deinterlace" koanf:"deinterlace"`

	PadScaleW string `yaml:"pad_scale_w" koanf:"pad_scale_w"`
	PadScaleH string `yaml:"pad_scale_h" koanf:"pad_scale_h"`
	PadVideo  string `yaml:"pad_video" koanf:"pad_video"`

	FPS    string `yaml:"fps" koanf:"fps"`
	Scale  string `yaml:"scale" koanf:"scale"`
	SetDAR string `yaml:"set_dar" koanf:"set_dar"`

	FadeIn  string `yaml:"fade_in" koanf:"fade_in"`
	FadeOut string `yaml:"fade_out" koanf:"fade_out"`

	OverlayLogoScale   string `yaml:"overlay_logo_scale" koanf:"overlay_logo_scale"`
	OverlayLogoFadeIn  string `yaml:"overlay_logo_fade_in" koanf:"overlay_logo_fade_in"`
	OverlayLogoFadeOut string `yaml:"overlay_logo_fade_out" koanf:"overlay_logo_fade_out"`
	OverlayLogo        string `yaml:"overlay_logo" koanf:"overlay_logo"`

	Tpad             string `yaml:"tpad" koanf:"tpad"`
	DrawtextFromFile string `yaml:"drawtext_from_file" koanf:"drawtext_from_file"`
	DrawtextFromZmq  string `yaml:"drawtext_from_zmq" koanf:"drawtext_from_zmq"`

	AevalSrc string `yaml:"aevalsrc" koanf:"aevalsrc"`
	AfadeIn  string `yaml:"afade_in" koanf:"afade_in"`
	AfadeOut string `yaml:"afade_out" koanf:"afade_out"`
	Apad     string `yaml:"apad" koanf:"apad"`
	Volume   string `yaml:"volume" koanf:"volume"`
	Split    string `yaml:"split" koanf:"split"`
}

func (a Advanced) clone() Advanced {
	return a // all fields are plain strings/structs of strings; shallow copy suffices
}

// mergeOver returns a, with any zero-value field filled in from base. Used
// by Config.Channel to let a per-channel Advanced override only the fields
// it sets, inheriting the rest from Default.
func (a Advanced) mergeOver(base Advanced) Advanced {
	if a.Decoder.InputParam == "" {
		a.Decoder.InputParam = base.Decoder.InputParam
	}
	if a.Decoder.OutputParam == "" {
		a.Decoder.OutputParam = base.Decoder.OutputParam
	}
	if a.Encoder.InputParam == "" {
		a.Encoder.InputParam = base.Encoder.InputParam
	}
	if a.Ingest.InputParam == "" {
		a.Ingest.InputParam = base.Ingest.InputParam
	}
	a.Filters = a.Filters.mergeOver(base.Filters)
	return a
}

func (f Filters) mergeOver(base Filters) Filters {
	merge := func(v, b string) string {
		if v == "" {
			return b
		}
		return v
	}
	return Filters{
		Deinterlace:        merge(f.Deinterlace, base.Deinterlace),
		PadScaleW:          merge(f.PadScaleW, base.PadScaleW),
		PadScaleH:          merge(f.PadScaleH, base.PadScaleH),
		PadVideo:           merge(f.PadVideo, base.PadVideo),
		FPS:                merge(f.FPS, base.FPS),
		Scale:              merge(f.Scale, base.Scale),
		SetDAR:             merge(f.SetDAR, base.SetDAR),
		FadeIn:             merge(f.FadeIn, base.FadeIn),
		FadeOut:            merge(f.FadeOut, base.FadeOut),
		OverlayLogoScale:   merge(f.OverlayLogoScale, base.OverlayLogoScale),
		OverlayLogoFadeIn:  merge(f.OverlayLogoFadeIn, base.OverlayLogoFadeIn),
		OverlayLogoFadeOut: merge(f.OverlayLogoFadeOut, base.OverlayLogoFadeOut),
		OverlayLogo:        merge(f.OverlayLogo, base.OverlayLogo),
		Tpad:               merge(f.Tpad, base.Tpad),
		DrawtextFromFile:   merge(f.DrawtextFromFile, base.DrawtextFromFile),
		DrawtextFromZmq:    merge(f.DrawtextFromZmq, base.DrawtextFromZmq),
		AevalSrc:           merge(f.AevalSrc, base.AevalSrc),
		AfadeIn:            merge(f.AfadeIn, base.AfadeIn),
		AfadeOut:           merge(f.AfadeOut, base.AfadeOut),
		Apad:               merge(f.Apad, base.Apad),
		Volume:             merge(f.Volume, base.Volume),
		Split:              merge(f.Split, base.Split),
	}
}

// Override applies a Filters field's ffmpeg expression onto a synthesized
// stage: empty means "use synthesized unchanged", "+"-prefixed means
// append after the synthesized stage, anything else replaces it outright.
func Override(synthesized, configured string) string {
	if configured == "" {
		return synthesized
	}
	if len(configured) > 0 && configured[0] == '+' {
		if synthesized == "" {
			return configured[1:]
		}
		return synthesized + "," + configured[1:]
	}
	return configured
}
