// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/webgame-three/fpsync/pkg/core"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	SessionID   string           `json:"sessionId"`
	LocalID     string           `json:"localId"`
	ServerURL   string           `json:"serverUrl"`
	Version     string           `json:"version"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	Players     []PlayerJSON     `json:"players"`
	Projectiles []ProjectileJSON `json:"projectiles"`
	Presence    []PresenceJSON   `json:"presence"`
	Chat        []ChatJSON       `json:"chat"`
}

// PlayerJSON is one remote player with its recorded states
type PlayerJSON struct {
	ID             string      `json:"id"`
	States         []StateJSON `json:"states"`
	DisconnectedAt []time.Time `json:"disconnectedAt,omitempty"`
}

// StateJSON is one player sample
type StateJSON struct {
	Time     time.Time     `json:"time"`
	Position core.Vector3  `json:"position"`
	Rotation core.Rotation `json:"rotation"`
	Health   int           `json:"health"`
}

// ProjectileJSON is one shot
type ProjectileJSON struct {
	Time      time.Time    `json:"time"`
	ID        string       `json:"id"`
	Position  core.Vector3 `json:"position"`
	Direction core.Vector3 `json:"direction"`
}

// PresenceJSON is a join or leave
type PresenceJSON struct {
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Username string    `json:"username"`
}

// ChatJSON is one chat line
type ChatJSON struct {
	Time     time.Time `json:"time"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	sessionID := strings.ReplaceAll(b.session.ID, string(os.PathSeparator), "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionID, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionID, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		SessionID:   b.session.ID,
		LocalID:     string(b.session.LocalID),
		ServerURL:   b.session.ServerURL,
		Version:     b.session.Version,
		StartTime:   b.session.StartTime,
		EndTime:     b.session.EndTime,
		Players:     make([]PlayerJSON, 0, len(b.players)),
		Projectiles: make([]ProjectileJSON, 0, len(b.projectiles)),
		Presence:    make([]PresenceJSON, 0, len(b.presence)),
		Chat:        make([]ChatJSON, 0, len(b.chat)),
	}

	for _, rec := range b.players {
		p := PlayerJSON{
			ID:             string(rec.ID),
			States:         make([]StateJSON, 0, len(rec.States)),
			DisconnectedAt: rec.Disconnects,
		}
		for _, s := range rec.States {
			p.States = append(p.States, StateJSON{
				Time:     s.Time,
				Position: s.State.Position,
				Rotation: s.State.Rotation,
				Health:   s.State.Health,
			})
		}
		export.Players = append(export.Players, p)
	}
	sort.Slice(export.Players, func(i, j int) bool { return export.Players[i].ID < export.Players[j].ID })

	for _, p := range b.projectiles {
		export.Projectiles = append(export.Projectiles, ProjectileJSON{
			Time:      p.Time,
			ID:        string(p.State.ID),
			Position:  p.State.Position,
			Direction: p.State.Direction,
		})
	}

	for _, e := range b.presence {
		export.Presence = append(export.Presence, PresenceJSON{Time: e.Time, Kind: string(e.Kind), Username: e.Username})
	}

	for _, m := range b.chat {
		export.Chat = append(export.Chat, ChatJSON{Time: m.Time, Username: m.Username, Message: m.Message})
	}

	return export
}

func writeExport(path string, data SessionExport, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer gzWriter.Close()
		w = gzWriter
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// ReadExport loads an export written by EndSession. Files ending in .gz are
// decompressed.
func ReadExport(path string) (SessionExport, error) {
	var export SessionExport

	f, err := os.Open(path)
	if err != nil {
		return export, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gzReader, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gzReader.Close()
		r = gzReader
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}
