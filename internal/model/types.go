package model

// Metadata describes the tensor contract of the loaded classifier.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes,omitempty"`
	ImageSize   int      `json:"image_size"`
}

// InputSize is the number of float32 values one input tensor holds.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

// OutputSize is the number of scores the model produces per input.
func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

// Prediction is the arg-max class and its score.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}
