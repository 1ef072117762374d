package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SetEnabled rewrites the enabled flag of one agent in the document at path.
// Only that scalar changes; comments and key order are kept.
func SetEnabled(path, name string, enabled bool) error {
	_, err := editEnabled(path, name, func(bool) bool { return enabled })
	return err
}

// Toggle flips the enabled flag of one agent on disk and returns the new value.
func Toggle(path, name string) (bool, error) {
	return editEnabled(path, name, func(cur bool) bool { return !cur })
}

func editEnabled(path, name string, next func(cur bool) bool) (bool, error) {
	// #nosec G304 operator-supplied config path
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, corrupt(path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return false, corrupt(path, err)
	}
	table := agentsNode(&root)
	if table == nil || table.Kind != yaml.MappingNode {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	def := mappingValue(table, name)
	if def == nil {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	if def.Kind != yaml.MappingNode {
		return false, corrupt(path, fmt.Errorf("agent %s is not a mapping", name))
	}

	val := mappingValue(def, "enabled")
	cur := false
	if val != nil {
		if b, err := strconv.ParseBool(val.Value); err == nil {
			cur = b
		}
	} else {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "enabled"}
		val = &yaml.Node{Kind: yaml.ScalarNode}
		def.Content = append(def.Content, key, val)
	}
	want := next(cur)
	val.Kind = yaml.ScalarNode
	val.Tag = "!!bool"
	val.Style = 0
	val.Value = strconv.FormatBool(want)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return false, err
	}
	if err := enc.Close(); err != nil {
		return false, err
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return false, err
	}
	return want, nil
}

// writeAtomic replaces path via a temp file in the same directory so a reader
// never sees a half-written document. The original file mode is kept.
func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
