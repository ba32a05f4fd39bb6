package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/facecat/facecat/internal/config"
	"github.com/facecat/facecat/internal/models"
)

// FaceResult is one face surfaced by Pipeline.DetectFaces: a bounding
// box, its raw embedding, detector confidence, and (if an attribute
// model is loaded) predicted age/gender. This is the concrete shape
// behind the detect(image) collaborator named in §6.
type FaceResult struct {
	BBox      models.BBox
	Embedding []float32
	DetScore  float64
	Age       *int
	Gender    *string
}

// Pipeline wires the detector, embedder, and optional attribute
// predictor into one detect-crop-embed-predict pass per image.
type Pipeline struct {
	detector   *Detector
	embedder   *Embedder
	attributes *AttributePredictor // nil if no attribute model configured
}

// NewPipeline builds a Pipeline from already-loaded models. attributes
// may be nil; callers that don't configure an attribute model get
// faces with Age/Gender left unset.
func NewPipeline(detector *Detector, embedder *Embedder, attributes *AttributePredictor) *Pipeline {
	return &Pipeline{detector: detector, embedder: embedder, attributes: attributes}
}

// NewPipelineFromConfig loads the detector, embedder, and attribute
// models named under cfg.ModelsDir and wires them into one Pipeline.
// Each worker goroutine owns its own Pipeline (ONNX sessions aren't
// shared across goroutines), so this is called once per pool slot.
// Per-session intra/inter-op thread counts are pinned per cfg so that
// MaxWorkers concurrent pipelines don't oversubscribe the host (§5).
func NewPipelineFromConfig(cfg config.VisionConfig) (*Pipeline, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")

	// newSessionOptions returns a fresh *ort.SessionOptions pinned to
	// cfg's thread counts; the caller must Destroy it once the session
	// that consumes it has been created.
	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	detOpts, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embOpts, err := newSessionOptions()
	if err != nil {
		det.Close()
		return nil, err
	}
	emb, err := NewEmbedder(embPath, embOpts)
	embOpts.Destroy()
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	attrOpts, err := newSessionOptions()
	if err != nil {
		det.Close()
		emb.Close()
		return nil, err
	}
	attr, err := NewAttributePredictor(attrPath, attrOpts)
	attrOpts.Destroy()
	if err != nil {
		det.Close()
		emb.Close()
		return nil, fmt.Errorf("load attribute predictor: %w", err)
	}

	slog.Debug("vision pipeline loaded", "models_dir", cfg.ModelsDir,
		"intra_op_threads", cfg.IntraOpThreads, "inter_op_threads", cfg.InterOpThreads)
	return &Pipeline{detector: det, embedder: emb, attributes: attr}, nil
}

// DetectFaces runs the full detect -> crop -> embed -> (optional)
// attribute pass over img and returns one FaceResult per surviving
// detection, in the detector's output order.
func (p *Pipeline) DetectFaces(img image.Image) ([]FaceResult, error) {
	b := img.Bounds()
	origW, origH := b.Dx(), b.Dy()

	dw, dh := p.detector.InputSize()
	detInput := DetectorInput(img, dw, dh)

	detections, err := p.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	results := make([]FaceResult, 0, len(detections))
	for _, d := range detections {
		bbox := models.BBox{
			Left:   clampInt(int(d.BBox[0]), 0, origW),
			Top:    clampInt(int(d.BBox[1]), 0, origH),
			Right:  clampInt(int(d.BBox[2]), 0, origW),
			Bottom: clampInt(int(d.BBox[3]), 0, origH),
		}
		if !bbox.Within(origW, origH) {
			continue
		}

		crop := CropRect(img, image.Rect(bbox.Left, bbox.Top, bbox.Right, bbox.Bottom))

		ew, eh := p.embedder.InputSize()
		embedding, err := p.embedder.Extract(EmbedderInput(crop, ew, eh))
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}

		fr := FaceResult{
			BBox:      bbox,
			Embedding: embedding,
			DetScore:  float64(d.Confidence),
		}

		if p.attributes != nil {
			aw, ah := p.attributes.InputSize()
			ga, err := p.attributes.Predict(AttributeInput(crop, aw, ah))
			if err == nil {
				age := ga.Age
				gender := ga.Gender
				fr.Age = &age
				fr.Gender = &gender
			}
		}

		results = append(results, fr)
	}

	return results, nil
}

func (p *Pipeline) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
	if p.embedder != nil {
		p.embedder.Close()
	}
	if p.attributes != nil {
		p.attributes.Close()
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
