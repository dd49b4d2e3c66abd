package slot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// CryptsetupReader lee tokens LUKS2 invocando cryptsetup, igual que la
// herramienta original. Requiere permisos de lectura sobre el header del
// dispositivo (normalmente root).
type CryptsetupReader struct {
	// Binary permite overridear el path de cryptsetup (tests). Default:
	// "cryptsetup" resuelto por PATH.
	Binary string
}

// luksToken es el subconjunto del token LUKS2 que interesa acá.
type luksToken struct {
	Type     string   `json:"type"`
	Keyslots []string `json:"keyslots"`
}

// ReadToken exporta la metadata JSON del header y retorna el token clevis
// asociado al slot dado.
func (r *CryptsetupReader) ReadToken(ctx context.Context, device string, slot int) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "cryptsetup"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "luksDump", "--dump-json-metadata", device)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("slot: cryptsetup luksDump %s: %v: %s", device, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var meta struct {
		Tokens map[string]json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("slot: parse luks metadata for %s: %v", device, err)
	}

	want := strconv.Itoa(slot)
	for _, raw := range meta.Tokens {
		var tok luksToken
		if err := json.Unmarshal(raw, &tok); err != nil {
			continue
		}
		if tok.Type != "clevis" {
			continue
		}
		for _, ks := range tok.Keyslots {
			if ks == want {
				return raw, nil
			}
		}
	}
	return nil, errNoToken(device, slot)
}
