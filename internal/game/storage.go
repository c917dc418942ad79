package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// characterDocument is the persisted form of one character. The field set is
// a small closed schema; pointers let a load tell a missing key apart from a
// zero value.
type characterDocument struct {
	Token     *string `json:"token"`
	Name      *string `json:"name"`
	Init      *int    `json:"init"`
	Earth     *int    `json:"earth"`
	Air       *int    `json:"air"`
	Fire      *int    `json:"fire"`
	Water     *int    `json:"water"`
	MaskEarth *bool   `json:"maskearth"`
	MaskAir   *bool   `json:"maskair"`
	MaskFire  *bool   `json:"maskfire"`
	MaskWater *bool   `json:"maskwater"`

	// Name snapshots taken at save time, used only for diagnostics when the
	// owner no longer resolves. Not authoritative, never re-validated.
	LastKnownDName *string `json:"last_known_dname"`
	LastKnownGName *string `json:"last_known_gname"`
}

// saveDocument is one guild's complete persisted game state.
type saveDocument struct {
	UserChars     map[string]*characterDocument `json:"userchars"`
	GuildID       int64                         `json:"guildid"`
	LastKnownName string                        `json:"last_known_name"`
	Options       map[string]string             `json:"options"`
}

// savePath derives a guild's save file location from its identity.
func savePath(dataDir string, guildID int64) string {
	return filepath.Join(dataDir, strconv.FormatInt(guildID, 10)+".json")
}

// writeLinked writes data to a fresh temporary file in dir, unlinks any
// existing file at path, hard-links the temporary file to path and discards
// the temporary name. The link makes the save file appear fully written or
// not at all; a crash between the unlink and the link leaves no file at path.
func writeLinked(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "save-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary save file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write save data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary save file: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to unlink previous save file: %w", err)
		}
	}
	if err := os.Link(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to link save file into place: %w", err)
	}

	return os.Remove(tmpPath)
}
