// SPDX-License-Identifier: MIT

// Package filter assembles ffmpeg filter-complex graphs. Build is a pure
// function: given a channel configuration, a media item and its position
// in the playlist, it returns the video/audio filter chains deterministically
// and performs no I/O, so it is trivially tested for byte-equality across
// runs (spec P5).
package filter

import (
	"fmt"
	"strings"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
)

// Position describes an item's place in the current playlist, driving
// fade-in/out at the first/last item.
type Position struct {
	Index int
	Total int
}

func (p Position) isFirst() bool { return p.Index == 0 }
func (p Position) isLast() bool  { return p.Total > 0 && p.Index == p.Total-1 }

// ChainState carries cross-item filter state; currently unused beyond
// being a documented extension point (spec §4.2 "chain-state" parameter)
// for future scene-transition bookkeeping.
type ChainState struct{}

// Graph is the assembled output of Build.
type Graph struct {
	VideoChain    string
	AudioChain    string
	FilterComplex string
	ExtraArgs     []string
}

// Build assembles the filter graph for item at position pos under cfg.
// Filter order is fixed, per spec §4.2:
//
//	video: deinterlace -> pad/scale -> fps -> setdar -> fade -> logo-overlay -> drawtext -> split
//	audio: aevalsrc(if needed) -> loudnorm/volume -> afade -> apad
//
// Every stage's synthesized expression passes through config.Override so
// an Advanced.Filters entry can replace or (with a leading "+") append to
// it.
func Build(cfg config.Channel, item media.Item, pos Position, _ ChainState) (Graph, error) {
	hasVideo := item.Probe == nil || item.Probe.HasVideo
	hasAudio := item.Probe == nil || item.Probe.HasAudio

	var video []string
	f := cfg.Advanced.Filters

	if hasVideo {
		video = appendStage(video, config.Override(deinterlaceStage(), f.Deinterlace))
		video = appendStage(video, config.Override(padScaleStage(cfg), f.PadScaleW+f.PadScaleH+f.PadVideo))
		video = appendStage(video, config.Override(fpsStage(cfg), f.FPS))
		video = appendStage(video, config.Override(setDARStage(cfg), f.SetDAR))
		video = appendStage(video, config.Override(fadeStage(pos), combineFade(f.FadeIn, f.FadeOut, pos)))
		video = appendStage(video, config.Override(logoOverlayStage(cfg), f.OverlayLogo))
	} else if !cfg.Processing.AudioOnly {
		return Graph{}, fmt.Errorf("item %q has no video and channel is not audio_only", item.Source)
	} else {
		video = appendStage(video, fmt.Sprintf("color=c=black:s=%dx%d:r=%g", cfg.Processing.Width, cfg.Processing.Height, cfg.Processing.FPS))
	}

	if cfg.Text.Enable {
		video = appendStage(video, config.Override(drawtextStage(cfg), drawtextOverride(f, cfg)))
	}
	if isSplitNeeded(cfg) {
		video = appendStage(video, config.Override(splitStage(), f.Split))
	}

	var audio []string
	if !hasAudio {
		audio = appendStage(audio, config.Override(aevalsrcStage(item), f.AevalSrc))
	}
	audio = appendStage(audio, config.Override(loudnormOrVolumeStage(cfg), ""))
	audio = appendStage(audio, config.Override(afadeStage(pos), combineFade(f.AfadeIn, f.AfadeOut, pos)))
	audio = appendStage(audio, config.Override(apadStage(), f.Apad))

	videoChain := strings.Join(video, ",")
	audioChain := strings.Join(audio, ",")

	var complex []string
	if videoChain != "" {
		complex = append(complex, fmt.Sprintf("[0:v]%s[vout]", videoChain))
	}
	if audioChain != "" {
		complex = append(complex, fmt.Sprintf("[0:a]%s[aout]", audioChain))
	}

	return Graph{
		VideoChain:    videoChain,
		AudioChain:    audioChain,
		FilterComplex: strings.Join(complex, ";"),
	}, nil
}

func appendStage(stages []string, expr string) []string {
	if strings.TrimSpace(expr) == "" {
		return stages
	}
	return append(stages, expr)
}

func deinterlaceStage() string { return "" }

func padScaleStage(cfg config.Channel) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		cfg.Processing.Width, cfg.Processing.Height, cfg.Processing.Width, cfg.Processing.Height,
	)
}

func fpsStage(cfg config.Channel) string {
	if cfg.Processing.FPS <= 0 {
		return ""
	}
	return fmt.Sprintf("fps=%g", cfg.Processing.FPS)
}

func setDARStage(cfg config.Channel) string {
	if cfg.Processing.Aspect == "" {
		return ""
	}
	return fmt.Sprintf("setdar=%s", strings.ReplaceAll(cfg.Processing.Aspect, ":", "/"))
}

const fadeDuration = 1.0

func fadeStage(pos Position) string {
	var stages []string
	if pos.isFirst() {
		stages = append(stages, fmt.Sprintf("fade=t=in:st=0:d=%g", fadeDuration))
	}
	if pos.isLast() {
		stages = append(stages, fmt.Sprintf("fade=t=out:d=%g", fadeDuration))
	}
	return strings.Join(stages, ",")
}

func afadeStage(pos Position) string {
	var stages []string
	if pos.isFirst() {
		stages = append(stages, fmt.Sprintf("afade=t=in:st=0:d=%g", fadeDuration))
	}
	if pos.isLast() {
		stages = append(stages, fmt.Sprintf("afade=t=out:d=%g", fadeDuration))
	}
	return strings.Join(stages, ",")
}

// combineFade lets a caller override fade-in/out independently; if either
// is set, it governs whether fadeStage's synthesized output is replaced.
// An empty result tells Build to keep the synthesized fade unchanged.
func combineFade(fadeIn, fadeOut string, pos Position) string {
	var parts []string
	if pos.isFirst() && fadeIn != "" {
		parts = append(parts, fadeIn)
	}
	if pos.isLast() && fadeOut != "" {
		parts = append(parts, fadeOut)
	}
	return strings.Join(parts, ",")
}

func logoOverlayStage(cfg config.Channel) string {
	if cfg.Processing.LogoPath == "" {
		return ""
	}
	position := cfg.Processing.LogoFilter
	if position == "" {
		position = "overlay=W-w-10:10"
	}
	return position
}

func drawtextStage(cfg config.Channel) string {
	if cfg.Text.FromFile != "" {
		return fmt.Sprintf("drawtext=textfile=%s:reload=1:%s", cfg.Text.FromFile, cfg.Text.Style)
	}
	if cfg.Text.FromSocket {
		return fmt.Sprintf("zmq=bind_address=%s,drawtext=text='':%s", cfg.Ingest.BindSocket, cfg.Text.Style)
	}
	return ""
}

func drawtextOverride(f config.Filters, cfg config.Channel) string {
	if cfg.Text.FromFile != "" {
		return f.DrawtextFromFile
	}
	if cfg.Text.FromSocket {
		return f.DrawtextFromZmq
	}
	return ""
}

func isSplitNeeded(cfg config.Channel) bool {
	return len(cfg.Output.OutputCmd) > 0 && cfg.Ingest.Enable
}

func splitStage() string { return "split=2[main][tap]" }

func aevalsrcStage(item media.Item) string {
	duration := item.PlayedDuration()
	if duration <= 0 {
		duration = item.Duration
	}
	return fmt.Sprintf("aevalsrc=0:channel_layout=stereo:sample_rate=48000,atrim=duration=%g", duration)
}

func loudnormOrVolumeStage(cfg config.Channel) string {
	if cfg.Processing.Loudnorm.Enable {
		return fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g", cfg.Processing.Loudnorm.I, cfg.Processing.Loudnorm.TP, cfg.Processing.Loudnorm.LRA)
	}
	return ""
}

func apadStage() string { return "apad=whole_dur=0" }
