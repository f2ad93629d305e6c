package drift

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeObservationSet decodes a detector message. Accepts raw JSON or
// zlib-compressed JSON.
func DecodeObservationSet(data []byte) (ObservationSet, error) {
	jsonBytes, err := payloadJSON(data)
	if err != nil {
		return ObservationSet{}, err
	}

	var set ObservationSet
	if err := json.Unmarshal(jsonBytes, &set); err != nil {
		return ObservationSet{}, fmt.Errorf("parsing observation set: %w", err)
	}
	if set.Header.Stamp.IsZero() {
		return ObservationSet{}, fmt.Errorf("observation set has no stamp")
	}
	return set, nil
}

// DecodeTransforms decodes a transform message holding either a single
// TransformStamped or an array of them.
func DecodeTransforms(data []byte) ([]TransformStamped, error) {
	jsonBytes, err := payloadJSON(data)
	if err != nil {
		return nil, err
	}

	var tfs []TransformStamped
	if jsonBytes[0] == '[' {
		if err := json.Unmarshal(jsonBytes, &tfs); err != nil {
			return nil, fmt.Errorf("parsing transform array: %w", err)
		}
	} else {
		var tf TransformStamped
		if err := json.Unmarshal(jsonBytes, &tf); err != nil {
			return nil, fmt.Errorf("parsing transform: %w", err)
		}
		tfs = []TransformStamped{tf}
	}

	for i, tf := range tfs {
		if tf.Header.FrameID == "" || tf.ChildFrameID == "" {
			return nil, fmt.Errorf("transform[%d] is missing a frame id", i)
		}
	}
	return tfs, nil
}

func payloadJSON(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	if data[0] == '{' || data[0] == '[' {
		return data, nil
	}

	inflated, err := inflateZlib(data)
	if err != nil {
		return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed JSON")
	}
	inflated = bytes.TrimSpace(inflated)
	if len(inflated) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return inflated, nil
}

// maxInflatedSize caps a decompressed message. A frame with a few dozen
// markers is a few KiB.
const maxInflatedSize = 1 << 20

func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflatedSize {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", maxInflatedSize)
	}
	return out, nil
}
