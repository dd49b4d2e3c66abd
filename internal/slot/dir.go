package slot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirReader lee tokens previamente exportados a un directorio
// (cryptsetup token export > slot-<n>.json). Sirve para chequear sin
// privilegios sobre el dispositivo y para tests.
type DirReader struct {
	Dir string
}

// ReadToken lee <dir>/slot-<n>.json. El nombre de device no participa del
// lookup: el directorio ya es per-device.
func (r *DirReader) ReadToken(ctx context.Context, device string, slot int) ([]byte, error) {
	path := filepath.Join(r.Dir, fmt.Sprintf("slot-%d.json", slot))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoToken(device, slot)
		}
		return nil, fmt.Errorf("slot: read %s: %v", path, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("slot: %s is empty", path)
	}
	return b, nil
}
