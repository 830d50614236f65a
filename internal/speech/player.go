package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrStopped reports playback killed by Stop, Skip or mute rather than by a
// player failure.
var ErrStopped = errors.New("speech: playback stopped")

// playerCandidates are tried in order when no player command is configured.
// Each entry plays one audio file argument and exits when done.
var playerCandidates = [][]string{
	{"afplay"},
	{"mpv", "--no-video", "--really-quiet"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	{"paplay"},
	{"aplay", "-q"},
}

// playback is one subprocess invocation.
type playback struct {
	cmd     *exec.Cmd
	stopped bool // killed on purpose, not a player failure
}

// Player runs the system audio player. At most one playback subprocess is
// alive at a time; starting a new one kills the previous one first.
type Player struct {
	command []string

	mu      sync.Mutex
	current *playback
}

// NewPlayer builds a player. commandTemplate overrides autodetection; it
// may carry an {input} placeholder, otherwise the file is appended as the
// final argument.
func NewPlayer(commandTemplate string) (*Player, error) {
	if commandTemplate != "" {
		fields := strings.Fields(commandTemplate)
		if len(fields) == 0 {
			return nil, fmt.Errorf("speech: empty player command")
		}
		return &Player{command: fields}, nil
	}

	for _, candidate := range playerCandidates {
		if _, err := exec.LookPath(candidate[0]); err == nil {
			return &Player{command: candidate}, nil
		}
	}
	return nil, fmt.Errorf("speech: no audio player found (tried afplay, mpv, ffplay, paplay, aplay)")
}

// Play plays the audio file at path and blocks until it finishes. A play
// while another is active stops the active one. Returns ErrStopped when the
// process was killed through Stop.
func (p *Player) Play(ctx context.Context, path string) error {
	args := p.argsFor(path)
	pb := &playback{cmd: exec.CommandContext(ctx, args[0], args[1:]...)}

	// Killing the previous playback, spawning the next and installing it
	// happen in one critical section: a concurrent Stop then always finds a
	// live process to kill instead of slipping between an unset current and
	// an unstarted command.
	p.mu.Lock()
	if prev := p.current; prev != nil {
		prev.stopped = true
		if err := prev.cmd.Process.Kill(); err != nil {
			log.Debug().Err(err).Msg("Kill playback process failed")
		}
	}
	if err := pb.cmd.Start(); err != nil {
		p.current = nil
		p.mu.Unlock()
		return fmt.Errorf("audio player %s: %w", args[0], err)
	}
	p.current = pb
	p.mu.Unlock()

	err := pb.cmd.Wait()

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
	}
	wasStopped := pb.stopped
	p.mu.Unlock()

	if wasStopped || (err != nil && ctx.Err() != nil) {
		return ErrStopped
	}
	if err != nil {
		return fmt.Errorf("audio player %s: %w", args[0], err)
	}
	return nil
}

// PlayBytes writes audio to a temp file, plays it, and always removes the
// file afterwards, including when playback is stopped mid-play.
func (p *Player) PlayBytes(ctx context.Context, data []byte, ext string) error {
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(os.TempDir(), "talkback-play-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write temp audio: %w", err)
	}
	defer os.Remove(path)

	return p.Play(ctx, path)
}

// Stop kills the active playback process, if any. current is only ever set
// after a successful Start, so its process handle is never nil.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.current.stopped = true
	if err := p.current.cmd.Process.Kill(); err != nil {
		log.Debug().Err(err).Msg("Kill playback process failed")
	}
}

// IsPlaying reports whether a playback process is alive.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Player) argsFor(path string) []string {
	args := make([]string, 0, len(p.command)+1)
	replaced := false
	for _, a := range p.command {
		if strings.Contains(a, "{input}") {
			a = strings.ReplaceAll(a, "{input}", path)
			replaced = true
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, path)
	}
	return args
}
