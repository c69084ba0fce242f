package runtime

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"livestack/pkg/compiler"
	"livestack/pkg/wasm"
)

// humanReadableState is the JSON part of a hibernation archive.
type humanReadableState struct {
	MemorySizeBytes int                           `json:"memory_size_bytes"`
	Cycles          uint64                        `json:"cycles"`
	Modules         compiler.CompiledModuleLookup `json:"compiled_modules,omitempty"`
}

// HibernateToBytes packs the running program, its memory and the optional
// memory map into a ZIP archive.
func (r *Runtime) HibernateToBytes(modules compiler.CompiledModuleLookup) ([]byte, error) {
	if r.program == nil {
		return nil, ErrNoProgram
	}
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := humanReadableState{
		MemorySizeBytes: int(r.mem.Size()),
		Cycles:          r.Cycles,
		Modules:         modules,
	}
	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	if err := writeZipEntry(zw, "state.json", jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "program.wasm", r.code); err != nil {
		return nil, err
	}
	mem, _ := r.mem.Read(0, r.mem.Size())
	if err := writeZipEntry(zw, "memory.bin", mem); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes instantiates the archived program and copies the
// archived memory over the live one. Init is not run. It returns the
// memory map stored in the archive, if any.
func (r *Runtime) RestoreFromBytes(ctx context.Context, data []byte) (compiler.CompiledModuleLookup, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	fileMap := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "state.json")
	if err != nil {
		return nil, err
	}
	var state humanReadableState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	code, err := readZipEntry(fileMap, "program.wasm")
	if err != nil {
		return nil, err
	}
	mem, err := readZipEntry(fileMap, "memory.bin")
	if err != nil {
		return nil, err
	}
	if len(mem) > state.MemorySizeBytes {
		return nil, fmt.Errorf("memory.bin holds %d bytes, state says %d", len(mem), state.MemorySizeBytes)
	}

	if pages := wasm.PagesFor(state.MemorySizeBytes); r.mem == nil || pages != r.pages {
		if err := r.replaceMemory(ctx, pages); err != nil {
			return nil, err
		}
	}
	if err := r.instantiate(ctx, code); err != nil {
		return nil, err
	}
	r.mem.Write(0, make([]byte, r.mem.Size()))
	r.mem.Write(0, mem)
	r.Cycles = state.Cycles
	r.log.Debug("restored", "bytes", len(mem), "cycles", state.Cycles)
	return state.Modules, nil
}

// HibernateToFile writes the hibernation archive to path.
func (r *Runtime) HibernateToFile(path string, modules compiler.CompiledModuleLookup) error {
	data, err := r.HibernateToBytes(modules)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from path.
func (r *Runtime) RestoreFromFile(ctx context.Context, path string) (compiler.CompiledModuleLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.RestoreFromBytes(ctx, data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
