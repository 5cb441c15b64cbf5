package calib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// Format is an on-disk calibration record encoding.
type Format int

const (
	// FormatYAML is OpenCV FileStorage-compatible YAML.
	FormatYAML Format = iota
	// FormatJSON is plain JSON with the same keys.
	FormatJSON
)

const (
	openCVHeader    = "%YAML:1.0"
	openCVMatrixTag = "!!opencv-matrix"
)

// FormatForPath picks the record format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: unsupported calibration file extension %q (want .yml, .yaml or .json)", vision.ErrConfiguration, filepath.Ext(path))
	}
}

// record is the persisted form of a Result. Per-view errors are not stored.
type record struct {
	CalibratedAt time.Time
	ImageWidth   int
	ImageHeight  int
	ViewCount    int
	CameraMatrix camera.Mat3
	DistCoeffs   []float64
	RepError     float64
}

func recordFromResult(r Result) record {
	return record{
		CalibratedAt: r.CalibratedAt,
		ImageWidth:   r.ImageSize.X,
		ImageHeight:  r.ImageSize.Y,
		ViewCount:    r.ViewCount,
		CameraMatrix: r.Camera.Matrix(),
		DistCoeffs:   append([]float64(nil), r.Camera.Distortion...),
		RepError:     r.RepError,
	}
}

func (rec record) result() (Result, error) {
	model, err := camera.NewModel(rec.CameraMatrix, rec.DistCoeffs)
	if err != nil {
		return Result{}, err
	}
	if rec.RepError < 0 {
		return Result{}, fmt.Errorf("negative repError %g", rec.RepError)
	}
	return Result{
		Camera:       model,
		RepError:     rec.RepError,
		ImageSize:    image.Pt(rec.ImageWidth, rec.ImageHeight),
		ViewCount:    rec.ViewCount,
		CalibratedAt: rec.CalibratedAt,
	}, nil
}

// encodeRecord renders rec in the given format.
func encodeRecord(rec record, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return encodeYAML(rec)
	case FormatJSON:
		return encodeJSON(rec)
	default:
		return nil, fmt.Errorf("unknown record format %d", f)
	}
}

// decodeRecord parses data in the given format.
func decodeRecord(data []byte, f Format) (record, error) {
	switch f {
	case FormatYAML:
		return decodeYAML(data)
	case FormatJSON:
		return decodeJSON(data)
	default:
		return record{}, fmt.Errorf("unknown record format %d", f)
	}
}

// jsonRecord mirrors the YAML keys; matrices are row-major nested arrays.
type jsonRecord struct {
	CalibratedAt time.Time     `json:"calibratedAt"`
	ImageWidth   int           `json:"imageWidth"`
	ImageHeight  int           `json:"imageHeight"`
	ViewCount    int           `json:"viewCount"`
	CameraMatrix [3][3]float64 `json:"cameraMatrix"`
	DistCoeffs   []float64     `json:"distCoeffs"`
	RepError     float64       `json:"repError"`
}

func encodeJSON(rec record) ([]byte, error) {
	out := jsonRecord{
		CalibratedAt: rec.CalibratedAt,
		ImageWidth:   rec.ImageWidth,
		ImageHeight:  rec.ImageHeight,
		ViewCount:    rec.ViewCount,
		DistCoeffs:   rec.DistCoeffs,
		RepError:     rec.RepError,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.CameraMatrix[i][j] = rec.CameraMatrix[i*3+j]
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeJSON(data []byte) (record, error) {
	var in jsonRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return record{}, fmt.Errorf("parse JSON calibration: %w", err)
	}
	rec := record{
		CalibratedAt: in.CalibratedAt,
		ImageWidth:   in.ImageWidth,
		ImageHeight:  in.ImageHeight,
		ViewCount:    in.ViewCount,
		DistCoeffs:   in.DistCoeffs,
		RepError:     in.RepError,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rec.CameraMatrix[i*3+j] = in.CameraMatrix[i][j]
		}
	}
	return rec, nil
}

// yamlMatrix is the body of an !!opencv-matrix mapping.
type yamlMatrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	DT   string    `yaml:"dt"`
	Data []float64 `yaml:"data"`
}

type yamlRecord struct {
	CalibratedAt string     `yaml:"calibratedAt"`
	ImageWidth   int        `yaml:"imageWidth"`
	ImageHeight  int        `yaml:"imageHeight"`
	ViewCount    int        `yaml:"viewCount"`
	CameraMatrix yamlMatrix `yaml:"cameraMatrix"`
	DistCoeffs   yamlMatrix `yaml:"distCoeffs"`
	RepError     float64    `yaml:"repError"`
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func floatScalar(v float64) *yaml.Node {
	return scalar(strconv.FormatFloat(v, 'g', -1, 64))
}

func matrixNode(rows, cols int, data []float64) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range data {
		seq.Content = append(seq.Content, floatScalar(v))
	}
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  openCVMatrixTag,
		Content: []*yaml.Node{
			scalar("rows"), scalar(strconv.Itoa(rows)),
			scalar("cols"), scalar(strconv.Itoa(cols)),
			scalar("dt"), scalar("d"),
			scalar("data"), seq,
		},
	}
}

func encodeYAML(rec record) ([]byte, error) {
	calibratedAt := &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: rec.CalibratedAt.UTC().Format(time.RFC3339)}
	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			scalar("calibratedAt"), calibratedAt,
			scalar("imageWidth"), scalar(strconv.Itoa(rec.ImageWidth)),
			scalar("imageHeight"), scalar(strconv.Itoa(rec.ImageHeight)),
			scalar("viewCount"), scalar(strconv.Itoa(rec.ViewCount)),
			scalar("cameraMatrix"), matrixNode(3, 3, rec.CameraMatrix[:]),
			scalar("distCoeffs"), matrixNode(1, len(rec.DistCoeffs), rec.DistCoeffs),
			scalar("repError"), floatScalar(rec.RepError),
		},
	}

	var buf bytes.Buffer
	buf.WriteString(openCVHeader + "\n---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(3)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeYAML(data []byte) (record, error) {
	// yaml.v3 rejects OpenCV's "%YAML:1.0" directive spelling.
	text := string(data)
	if strings.HasPrefix(text, "%YAML") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return record{}, fmt.Errorf("parse YAML calibration: %w", err)
	}
	if len(root.Content) == 0 {
		return record{}, fmt.Errorf("parse YAML calibration: empty document")
	}
	retagMatrices(&root)

	var in yamlRecord
	if err := root.Content[0].Decode(&in); err != nil {
		return record{}, fmt.Errorf("parse YAML calibration: %w", err)
	}

	rec := record{
		ImageWidth:  in.ImageWidth,
		ImageHeight: in.ImageHeight,
		ViewCount:   in.ViewCount,
		DistCoeffs:  in.DistCoeffs.Data,
		RepError:    in.RepError,
	}
	if in.CalibratedAt != "" {
		t, err := time.Parse(time.RFC3339, in.CalibratedAt)
		if err != nil {
			return record{}, fmt.Errorf("parse calibratedAt: %w", err)
		}
		rec.CalibratedAt = t
	}
	if in.CameraMatrix.Rows != 3 || in.CameraMatrix.Cols != 3 || len(in.CameraMatrix.Data) != 9 {
		return record{}, fmt.Errorf("cameraMatrix must be 3x3, got %dx%d with %d values",
			in.CameraMatrix.Rows, in.CameraMatrix.Cols, len(in.CameraMatrix.Data))
	}
	copy(rec.CameraMatrix[:], in.CameraMatrix.Data)
	if n := in.DistCoeffs.Rows * in.DistCoeffs.Cols; n != len(in.DistCoeffs.Data) {
		return record{}, fmt.Errorf("distCoeffs declares %d values but holds %d", n, len(in.DistCoeffs.Data))
	}
	return rec, nil
}

// retagMatrices replaces the OpenCV matrix tag with a plain map tag so the
// generic decoder accepts the node.
func retagMatrices(n *yaml.Node) {
	if n.Kind == yaml.MappingNode && n.Tag == openCVMatrixTag {
		n.Tag = "!!map"
	}
	for _, c := range n.Content {
		retagMatrices(c)
	}
}
