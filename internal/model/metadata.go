package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const metadataSchema = `{
  "type": "object",
  "required": ["input_shape", "output_shape"],
  "properties": {
    "input_shape":  {"type": "array", "minItems": 2, "items": {"type": "integer", "minimum": 1}},
    "output_shape": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 1}},
    "classes":      {"type": "array", "items": {"type": "string", "minLength": 1}},
    "image_size":   {"type": "integer", "minimum": 1}
  }
}`

// LoadMetadata reads and validates a metadata JSON file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(metadataSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Metadata{}, fmt.Errorf("invalid metadata: %s", strings.Join(msgs, "; "))
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}

// DefaultMetadata builds the contract of a single-image RGB classifier when no
// metadata file is shipped with the model.
func DefaultMetadata(imageSize int, channelsFirst bool, numClasses int) Metadata {
	size := int64(imageSize)
	input := []int64{1, size, size, 3}
	if channelsFirst {
		input = []int64{1, 3, size, size}
	}
	return Metadata{
		InputShape:  input,
		OutputShape: []int64{1, int64(numClasses)},
		ImageSize:   imageSize,
	}
}

// CheckLabels verifies that labels agree with the metadata: listed classes
// must match exactly and the output width must equal the label count.
func (m Metadata) CheckLabels(labels []string) error {
	if len(m.Classes) > 0 {
		if len(m.Classes) != len(labels) {
			return fmt.Errorf("metadata lists %d classes, labels directory has %d", len(m.Classes), len(labels))
		}
		for i := range labels {
			if m.Classes[i] != labels[i] {
				return fmt.Errorf("class %d mismatch: metadata %q, labels directory %q", i, m.Classes[i], labels[i])
			}
		}
	}
	if out := m.OutputSize(); out != len(labels) {
		return fmt.Errorf("model outputs %d scores, labels directory has %d classes", out, len(labels))
	}
	return nil
}

// InputGeometry reads the square side length and channel order from
// InputShape, which must be [1,S,S,3] or [1,3,S,S]. A non-zero ImageSize has
// to agree with it.
func (m Metadata) InputGeometry() (size int, channelsFirst bool, err error) {
	s := m.InputShape
	if len(s) != 4 || s[0] != 1 {
		return 0, false, fmt.Errorf("input_shape %v is not a single-image batch", s)
	}
	switch {
	case s[3] == 3 && s[1] == s[2]:
		size = int(s[1])
	case s[1] == 3 && s[2] == s[3]:
		size, channelsFirst = int(s[2]), true
	default:
		return 0, false, fmt.Errorf("input_shape %v is not a square RGB image in NHWC or NCHW order", s)
	}
	if m.ImageSize != 0 && m.ImageSize != size {
		return 0, false, fmt.Errorf("image_size %d disagrees with input_shape %v", m.ImageSize, s)
	}
	return size, channelsFirst, nil
}
