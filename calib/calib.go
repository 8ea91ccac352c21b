// Package calib persists per-actuator calibration (angle mapping plus
// control tuning) to a YAML file guarded by a CRC trailer, so a torn write
// or hand-edit slip cannot feed garbage into the controller at boot.
package calib

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snksoft/crc"
	"gopkg.in/yaml.v2"

	"github.com/skyswordx/gripperd/gripper"
)

// trailerPrefix marks the integrity line; it parses as a YAML comment so
// the body stays loadable by other tools
const trailerPrefix = "# crc16: "

var crcTable = crc.NewTable(crc.XMODEM)

// ErrCorrupt indicates the file's CRC trailer does not match its body
var ErrCorrupt = errors.New("calib: stored calibration is corrupt")

// Record holds everything saved for one actuator
type Record struct {
	Mapping gripper.Mapping       `yaml:"mapping"`
	Params  gripper.ControlParams `yaml:"params"`
}

// File is the full on-disk document, keyed by actuator slot
type File struct {
	Grippers map[int]Record `yaml:"grippers"`
}

func checksum(body []byte) string {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, body)
	return fmt.Sprintf("%04x", crcTable.CRC16(c))
}

// Save writes the calibration atomically: the document goes to a temp file
// in the same directory and is renamed over the destination
func Save(path string, f File) error {
	body, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	out := append(body, []byte(trailerPrefix+checksum(body)+"\n")...)
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, ".calib-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(out)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads and verifies a calibration file.  A missing or wrong CRC
// trailer returns ErrCorrupt; the caller should fall back to defaults.
func Load(path string) (File, error) {
	var f File
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return f, err
	}
	idx := strings.LastIndex(string(raw), trailerPrefix)
	if idx < 0 {
		return f, fmt.Errorf("%w: no integrity trailer", ErrCorrupt)
	}
	body := raw[:idx]
	stored := strings.TrimSpace(string(raw[idx+len(trailerPrefix):]))
	if _, err := strconv.ParseUint(stored, 16, 16); err != nil {
		return f, fmt.Errorf("%w: malformed trailer %q", ErrCorrupt, stored)
	}
	if stored != checksum(body) {
		return f, fmt.Errorf("%w: trailer %s, body sums to %s", ErrCorrupt, stored, checksum(body))
	}
	err = yaml.Unmarshal(body, &f)
	return f, err
}
