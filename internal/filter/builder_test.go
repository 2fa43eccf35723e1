package filter

import (
	"strings"
	"testing"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
)

func baseChannel() config.Channel {
	cfg := config.DefaultConfig().Default
	cfg.Processing.Loudnorm = config.Loudnorm{Enable: true, I: -23, TP: -1, LRA: 7}
	return cfg
}

func TestBuildIsDeterministic(t *testing.T) {
	cfg := baseChannel()
	item := media.Item{
		Source: "/media/clip.mp4",
		Probe:  &media.Probe{HasVideo: true, HasAudio: true},
		Out:    30,
	}
	pos := Position{Index: 1, Total: 5}

	g1, err := Build(cfg, item, pos, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	g2, err := Build(cfg, item, pos, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if g1.VideoChain != g2.VideoChain || g1.AudioChain != g2.AudioChain || g1.FilterComplex != g2.FilterComplex {
		t.Fatalf("Build() is not deterministic:\n%+v\n%+v", g1, g2)
	}
}

func TestBuildFadeOnlyOnFirstAndLastItem(t *testing.T) {
	cfg := baseChannel()
	item := media.Item{Source: "/media/clip.mp4", Probe: &media.Probe{HasVideo: true, HasAudio: true}, Out: 30}

	first, err := Build(cfg, item, Position{Index: 0, Total: 3}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	middle, err := Build(cfg, item, Position{Index: 1, Total: 3}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	last, err := Build(cfg, item, Position{Index: 2, Total: 3}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(first.VideoChain, "fade=t=in") {
		t.Error("first item chain missing fade-in")
	}
	if strings.Contains(middle.VideoChain, "fade=t=in") || strings.Contains(middle.VideoChain, "fade=t=out") {
		t.Error("middle item chain should not fade")
	}
	if !strings.Contains(last.VideoChain, "fade=t=out") {
		t.Error("last item chain missing fade-out")
	}
}

func TestBuildAudioOnlySynthesizesBlackVideo(t *testing.T) {
	cfg := baseChannel()
	cfg.Processing.AudioOnly = true
	item := media.Item{Source: "/media/song.mp3", Probe: &media.Probe{HasVideo: false, HasAudio: true}, Out: 180}

	g, err := Build(cfg, item, Position{Index: 0, Total: 1}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(g.VideoChain, "color=c=black") {
		t.Errorf("VideoChain = %q, want synthesized black video", g.VideoChain)
	}
}

func TestBuildRejectsVideolessItemWhenNotAudioOnly(t *testing.T) {
	cfg := baseChannel()
	item := media.Item{Source: "/media/song.mp3", Probe: &media.Probe{HasVideo: false, HasAudio: true}, Out: 180}

	if _, err := Build(cfg, item, Position{Index: 0, Total: 1}, ChainState{}); err == nil {
		t.Fatal("Build() error = nil, want error for videoless item on a non-audio_only channel")
	}
}

func TestBuildSynthesizesSilenceWhenNoAudio(t *testing.T) {
	cfg := baseChannel()
	item := media.Item{Source: "/media/silent.mp4", Probe: &media.Probe{HasVideo: true, HasAudio: false}, Out: 60}

	g, err := Build(cfg, item, Position{Index: 0, Total: 1}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(g.AudioChain, "aevalsrc") {
		t.Errorf("AudioChain = %q, want synthesized aevalsrc silence", g.AudioChain)
	}
}

func TestBuildAdvancedFilterOverrideReplaces(t *testing.T) {
	cfg := baseChannel()
	cfg.Advanced.Filters.FPS = "fps=60"
	item := media.Item{Source: "/media/clip.mp4", Probe: &media.Probe{HasVideo: true, HasAudio: true}, Out: 30}

	g, err := Build(cfg, item, Position{Index: 0, Total: 1}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(g.VideoChain, "fps=60") {
		t.Errorf("VideoChain = %q, want replaced fps=60 stage", g.VideoChain)
	}
	if strings.Contains(g.VideoChain, "fps=25") {
		t.Error("VideoChain still contains synthesized default fps stage after override")
	}
}

func TestBuildAdvancedFilterOverrideAppends(t *testing.T) {
	cfg := baseChannel()
	cfg.Advanced.Filters.SetDAR = "+eq=contrast=1.1"
	item := media.Item{Source: "/media/clip.mp4", Probe: &media.Probe{HasVideo: true, HasAudio: true}, Out: 30}

	g, err := Build(cfg, item, Position{Index: 0, Total: 1}, ChainState{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(g.VideoChain, "setdar=16/9") {
		t.Errorf("VideoChain = %q, want synthesized setdar stage preserved", g.VideoChain)
	}
	if !strings.Contains(g.VideoChain, "eq=contrast=1.1") {
		t.Errorf("VideoChain = %q, want appended eq stage", g.VideoChain)
	}
}
