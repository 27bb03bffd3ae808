// Package checkpoints saves and restores training state: the model's
// parameter tensors, the optimizer's moment buffers, and enough metadata to
// resume a run. Two formats are supported, a readable JSON document and a
// compact binary encoding.
//
// Capture does not synchronize with a running strategy; callers snapshot
// between iterations, under the same external lock a concurrent renderer
// would use.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shadygm/go-splat/optimizer"
	"github.com/shadygm/go-splat/splat"
	"github.com/shadygm/go-splat/tensor"
	"github.com/shadygm/go-splat/training"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatBinary
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// fieldNames is the canonical order of the model's parameter fields, matching
// the optimizer's group order.
var fieldNames = []string{"means", "sh0", "shN", "scaling", "rotation", "opacity"}

// Checkpoint represents a complete training state including model parameters,
// optimizer state, and metadata
type Checkpoint struct {
	Model ModelState `json:"model"`

	TrainingState TrainingState `json:"training_state"`

	// Optimizer state, absent when the strategy was never initialized
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// ModelState carries the splat model's parameter tensors and scalars.
type ModelState struct {
	SceneScale     float32        `json:"scene_scale"`
	ActiveSHDegree int            `json:"active_sh_degree"`
	Fields         []WeightTensor `json:"fields"`
}

// WeightTensor represents one parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Iteration  int     `json:"iteration"`
	Population int     `json:"population"`
	MeansLR    float64 `json:"means_lr"`
}

// OptimizerState captures the optimizer's configuration and per-group moments
type OptimizerState struct {
	Type    string           `json:"type"`
	Beta1   float64          `json:"beta1"`
	Beta2   float64          `json:"beta2"`
	Eps     float64          `json:"eps"`
	AMSGrad bool             `json:"amsgrad"`
	Groups  []OptimizerGroup `json:"groups"`
}

// OptimizerGroup is one parameter group's learning rate and moment buffers.
// Moments are absent for groups that never accumulated state.
type OptimizerGroup struct {
	Name        string        `json:"name"`
	LR          float64       `json:"lr"`
	Step        int64         `json:"step"`
	ExpAvg      *WeightTensor `json:"exp_avg,omitempty"`
	ExpAvgSq    *WeightTensor `json:"exp_avg_sq,omitempty"`
	MaxExpAvgSq *WeightTensor `json:"max_exp_avg_sq,omitempty"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint saves a complete training checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatBinary:
		return cs.saveBinary(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a training checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatBinary:
		return cs.loadBinary(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	ensureMetadata(checkpoint)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}

// saveBinary saves checkpoint in the compact binary format
func (cs *CheckpointSaver) saveBinary(checkpoint *Checkpoint, path string) error {
	ensureMetadata(checkpoint)

	data, err := marshalBinary(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// loadBinary loads checkpoint from the compact binary format
func (cs *CheckpointSaver) loadBinary(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}
	checkpoint, err := unmarshalBinary(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %v", err)
	}
	return checkpoint, nil
}

func ensureMetadata(checkpoint *Checkpoint) {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-splat"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}
}

// Capture extracts a checkpoint from the strategy at the given iteration. The
// model's six parameter tensors are deep-copied; an uninitialized strategy
// yields a checkpoint without optimizer state.
func Capture(strategy *training.MCMC, iteration int) (*Checkpoint, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy is nil")
	}
	model := strategy.Model()

	tensors := []*tensor.Tensor{
		model.Means, model.Sh0, model.ShN,
		model.ScalingRaw, model.RotationRaw, model.OpacityRaw,
	}
	fields := make([]WeightTensor, len(tensors))
	for i, t := range tensors {
		wt, err := weightTensorFrom(fieldNames[i], t)
		if err != nil {
			return nil, err
		}
		fields[i] = wt
	}

	checkpoint := &Checkpoint{
		Model: ModelState{
			SceneScale:     model.SceneScale(),
			ActiveSHDegree: model.ActiveSHDegree(),
			Fields:         fields,
		},
		TrainingState: TrainingState{
			Iteration:  iteration,
			Population: model.Size(),
		},
	}

	if opt := strategy.Optimizer(); opt != nil {
		if lr, err := opt.LR(0); err == nil {
			checkpoint.TrainingState.MeansLR = lr
		}
		snapshot, err := opt.GetState()
		if err != nil {
			return nil, fmt.Errorf("failed to capture optimizer state: %v", err)
		}
		checkpoint.OptimizerState = optimizerStateFrom(snapshot)
	}

	return checkpoint, nil
}

func weightTensorFrom(name string, t *tensor.Tensor) (WeightTensor, error) {
	if t == nil {
		return WeightTensor{}, fmt.Errorf("field %s is nil", name)
	}
	data, ok := t.Data.([]float32)
	if !ok {
		return WeightTensor{}, fmt.Errorf("field %s is not a Float32 tensor", name)
	}
	wt := WeightTensor{
		Name:  name,
		Shape: make([]int, len(t.Shape)),
		Data:  make([]float32, len(data)),
	}
	copy(wt.Shape, t.Shape)
	copy(wt.Data, data)
	return wt, nil
}

func optimizerStateFrom(snapshot *optimizer.Snapshot) *OptimizerState {
	state := &OptimizerState{
		Type:    snapshot.Type,
		Beta1:   snapshot.Beta1,
		Beta2:   snapshot.Beta2,
		Eps:     snapshot.Eps,
		AMSGrad: snapshot.AMSGrad,
		Groups:  make([]OptimizerGroup, 0, len(snapshot.Groups)),
	}
	for _, gs := range snapshot.Groups {
		group := OptimizerGroup{
			Name: gs.Name,
			LR:   gs.LR,
			Step: gs.Step,
		}
		if gs.ExpAvg != nil {
			if wt, err := weightTensorFrom(gs.Name, gs.ExpAvg); err == nil {
				group.ExpAvg = &wt
			}
		}
		if gs.ExpAvgSq != nil {
			if wt, err := weightTensorFrom(gs.Name, gs.ExpAvgSq); err == nil {
				group.ExpAvgSq = &wt
			}
		}
		if gs.MaxExpAvgSq != nil {
			if wt, err := weightTensorFrom(gs.Name, gs.MaxExpAvgSq); err == nil {
				group.MaxExpAvgSq = &wt
			}
		}
		state.Groups = append(state.Groups, group)
	}
	return state
}

// RestoreModel rebuilds a splat model from a checkpoint's parameter tensors.
func RestoreModel(checkpoint *Checkpoint) (*splat.SplatData, error) {
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint is nil")
	}

	byName := make(map[string]*WeightTensor, len(checkpoint.Model.Fields))
	for i := range checkpoint.Model.Fields {
		byName[checkpoint.Model.Fields[i].Name] = &checkpoint.Model.Fields[i]
	}

	tensors := make([]*tensor.Tensor, len(fieldNames))
	for i, name := range fieldNames {
		wt, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("checkpoint is missing field %s", name)
		}
		t, err := wt.toTensor()
		if err != nil {
			return nil, fmt.Errorf("field %s: %v", name, err)
		}
		tensors[i] = t
	}

	model, err := splat.NewSplatData(
		tensors[0], tensors[1], tensors[2],
		tensors[3], tensors[4], tensors[5],
		checkpoint.Model.SceneScale,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild model: %v", err)
	}

	degree := checkpoint.Model.ActiveSHDegree
	if degree < 0 || degree > model.MaxSHDegree() {
		return nil, fmt.Errorf("checkpoint SH degree %d outside [0, %d]", degree, model.MaxSHDegree())
	}
	for i := 0; i < degree; i++ {
		model.IncrementSHDegree()
	}

	return model, nil
}

// Snapshot converts the serialized optimizer state back into the form the
// optimizer restores from.
func (s *OptimizerState) Snapshot() (*optimizer.Snapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("checkpoint has no optimizer state")
	}
	snapshot := &optimizer.Snapshot{
		Type:    s.Type,
		Beta1:   s.Beta1,
		Beta2:   s.Beta2,
		Eps:     s.Eps,
		AMSGrad: s.AMSGrad,
		Groups:  make([]optimizer.GroupSnapshot, 0, len(s.Groups)),
	}
	for _, group := range s.Groups {
		gs := optimizer.GroupSnapshot{
			Name: group.Name,
			LR:   group.LR,
			Step: group.Step,
		}
		if group.ExpAvg != nil {
			t, err := group.ExpAvg.toTensor()
			if err != nil {
				return nil, fmt.Errorf("group %s first moment: %v", group.Name, err)
			}
			gs.ExpAvg = t
		}
		if group.ExpAvgSq != nil {
			t, err := group.ExpAvgSq.toTensor()
			if err != nil {
				return nil, fmt.Errorf("group %s second moment: %v", group.Name, err)
			}
			gs.ExpAvgSq = t
		}
		if group.MaxExpAvgSq != nil {
			t, err := group.MaxExpAvgSq.toTensor()
			if err != nil {
				return nil, fmt.Errorf("group %s max second moment: %v", group.Name, err)
			}
			gs.MaxExpAvgSq = t
		}
		snapshot.Groups = append(snapshot.Groups, gs)
	}
	return snapshot, nil
}

func (wt *WeightTensor) toTensor() (*tensor.Tensor, error) {
	data := make([]float32, len(wt.Data))
	copy(data, wt.Data)
	return tensor.NewTensor(wt.Shape, tensor.Float32, tensor.CPU, data)
}
