package checkpoints

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Binary checkpoint encoding: protobuf wire format, hand-encoded with
// encoding/protowire. Nested messages are length-delimited; numeric vectors
// (shapes, tensor data) are packed. Unknown fields are skipped on decode so
// the format can grow without breaking old readers.

// Checkpoint fields.
const (
	binModel     protowire.Number = 1
	binTraining  protowire.Number = 2
	binOptimizer protowire.Number = 3
	binMetadata  protowire.Number = 4
)

// ModelState fields.
const (
	binSceneScale protowire.Number = 1
	binSHDegree   protowire.Number = 2
	binField      protowire.Number = 3
)

// WeightTensor fields.
const (
	binTensorName  protowire.Number = 1
	binTensorShape protowire.Number = 2
	binTensorData  protowire.Number = 3
)

// TrainingState fields.
const (
	binIteration  protowire.Number = 1
	binPopulation protowire.Number = 2
	binMeansLR    protowire.Number = 3
)

// OptimizerState fields.
const (
	binOptType    protowire.Number = 1
	binBeta1      protowire.Number = 2
	binBeta2      protowire.Number = 3
	binEps        protowire.Number = 4
	binAMSGrad    protowire.Number = 5
	binGroup      protowire.Number = 6
)

// OptimizerGroup fields.
const (
	binGroupName   protowire.Number = 1
	binGroupLR     protowire.Number = 2
	binGroupStep   protowire.Number = 3
	binExpAvg      protowire.Number = 4
	binExpAvgSq    protowire.Number = 5
	binMaxExpAvgSq protowire.Number = 6
)

// CheckpointMetadata fields.
const (
	binVersion     protowire.Number = 1
	binFramework   protowire.Number = 2
	binCreatedAt   protowire.Number = 3
	binDescription protowire.Number = 4
	binTag         protowire.Number = 5
)

func marshalBinary(checkpoint *Checkpoint) ([]byte, error) {
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint is nil")
	}

	var b []byte
	b = protowire.AppendTag(b, binModel, protowire.BytesType)
	b = protowire.AppendBytes(b, appendModelState(nil, &checkpoint.Model))

	b = protowire.AppendTag(b, binTraining, protowire.BytesType)
	b = protowire.AppendBytes(b, appendTrainingState(nil, &checkpoint.TrainingState))

	if checkpoint.OptimizerState != nil {
		b = protowire.AppendTag(b, binOptimizer, protowire.BytesType)
		b = protowire.AppendBytes(b, appendOptimizerState(nil, checkpoint.OptimizerState))
	}

	b = protowire.AppendTag(b, binMetadata, protowire.BytesType)
	b = protowire.AppendBytes(b, appendMetadata(nil, &checkpoint.Metadata))
	return b, nil
}

func unmarshalBinary(data []byte) (*Checkpoint, error) {
	checkpoint := &Checkpoint{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binModel:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if err := parseModelState(msg, &checkpoint.Model); err != nil {
				return nil, err
			}
		case binTraining:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if err := parseTrainingState(msg, &checkpoint.TrainingState); err != nil {
				return nil, err
			}
		case binOptimizer:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			state := &OptimizerState{}
			if err := parseOptimizerState(msg, state); err != nil {
				return nil, err
			}
			checkpoint.OptimizerState = state
		case binMetadata:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if err := parseMetadata(msg, &checkpoint.Metadata); err != nil {
				return nil, err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return checkpoint, nil
}

func appendModelState(b []byte, m *ModelState) []byte {
	b = protowire.AppendTag(b, binSceneScale, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(m.SceneScale))
	b = protowire.AppendTag(b, binSHDegree, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ActiveSHDegree))
	for i := range m.Fields {
		b = protowire.AppendTag(b, binField, protowire.BytesType)
		b = protowire.AppendBytes(b, appendWeightTensor(nil, &m.Fields[i]))
	}
	return b
}

func parseModelState(b []byte, m *ModelState) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binSceneScale:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			m.SceneScale = math.Float32frombits(v)
		case binSHDegree:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			m.ActiveSHDegree = int(v)
		case binField:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			var wt WeightTensor
			if err := parseWeightTensor(msg, &wt); err != nil {
				return err
			}
			m.Fields = append(m.Fields, wt)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendWeightTensor(b []byte, wt *WeightTensor) []byte {
	b = protowire.AppendTag(b, binTensorName, protowire.BytesType)
	b = protowire.AppendString(b, wt.Name)

	var shape []byte
	for _, dim := range wt.Shape {
		shape = protowire.AppendVarint(shape, uint64(dim))
	}
	b = protowire.AppendTag(b, binTensorShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	data := make([]byte, 0, 4*len(wt.Data))
	for _, v := range wt.Data {
		data = protowire.AppendFixed32(data, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, binTensorData, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

func parseWeightTensor(b []byte, wt *WeightTensor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binTensorName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			wt.Name = v
		case binTensorShape:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			for len(msg) > 0 {
				v, n := protowire.ConsumeVarint(msg)
				if n < 0 {
					return protowire.ParseError(n)
				}
				msg = msg[n:]
				wt.Shape = append(wt.Shape, int(v))
			}
		case binTensorData:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if len(msg)%4 != 0 {
				return fmt.Errorf("tensor %s data length %d is not a multiple of 4", wt.Name, len(msg))
			}
			wt.Data = make([]float32, 0, len(msg)/4)
			for len(msg) > 0 {
				v, n := protowire.ConsumeFixed32(msg)
				if n < 0 {
					return protowire.ParseError(n)
				}
				msg = msg[n:]
				wt.Data = append(wt.Data, math.Float32frombits(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendTrainingState(b []byte, ts *TrainingState) []byte {
	b = protowire.AppendTag(b, binIteration, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ts.Iteration))
	b = protowire.AppendTag(b, binPopulation, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ts.Population))
	b = protowire.AppendTag(b, binMeansLR, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(ts.MeansLR))
	return b
}

func parseTrainingState(b []byte, ts *TrainingState) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binIteration:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			ts.Iteration = int(v)
		case binPopulation:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			ts.Population = int(v)
		case binMeansLR:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			ts.MeansLR = math.Float64frombits(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendOptimizerState(b []byte, s *OptimizerState) []byte {
	b = protowire.AppendTag(b, binOptType, protowire.BytesType)
	b = protowire.AppendString(b, s.Type)
	b = protowire.AppendTag(b, binBeta1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.Beta1))
	b = protowire.AppendTag(b, binBeta2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.Beta2))
	b = protowire.AppendTag(b, binEps, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.Eps))
	if s.AMSGrad {
		b = protowire.AppendTag(b, binAMSGrad, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	for i := range s.Groups {
		b = protowire.AppendTag(b, binGroup, protowire.BytesType)
		b = protowire.AppendBytes(b, appendOptimizerGroup(nil, &s.Groups[i]))
	}
	return b
}

func parseOptimizerState(b []byte, s *OptimizerState) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binOptType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			s.Type = v
		case binBeta1:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			s.Beta1 = math.Float64frombits(v)
		case binBeta2:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			s.Beta2 = math.Float64frombits(v)
		case binEps:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			s.Eps = math.Float64frombits(v)
		case binAMSGrad:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			s.AMSGrad = v != 0
		case binGroup:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			var group OptimizerGroup
			if err := parseOptimizerGroup(msg, &group); err != nil {
				return err
			}
			s.Groups = append(s.Groups, group)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendOptimizerGroup(b []byte, g *OptimizerGroup) []byte {
	b = protowire.AppendTag(b, binGroupName, protowire.BytesType)
	b = protowire.AppendString(b, g.Name)
	b = protowire.AppendTag(b, binGroupLR, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(g.LR))
	b = protowire.AppendTag(b, binGroupStep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Step))
	if g.ExpAvg != nil {
		b = protowire.AppendTag(b, binExpAvg, protowire.BytesType)
		b = protowire.AppendBytes(b, appendWeightTensor(nil, g.ExpAvg))
	}
	if g.ExpAvgSq != nil {
		b = protowire.AppendTag(b, binExpAvgSq, protowire.BytesType)
		b = protowire.AppendBytes(b, appendWeightTensor(nil, g.ExpAvgSq))
	}
	if g.MaxExpAvgSq != nil {
		b = protowire.AppendTag(b, binMaxExpAvgSq, protowire.BytesType)
		b = protowire.AppendBytes(b, appendWeightTensor(nil, g.MaxExpAvgSq))
	}
	return b
}

func parseOptimizerGroup(b []byte, g *OptimizerGroup) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binGroupName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			g.Name = v
		case binGroupLR:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			g.LR = math.Float64frombits(v)
		case binGroupStep:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			g.Step = int64(v)
		case binExpAvg, binExpAvgSq, binMaxExpAvgSq:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			wt := &WeightTensor{}
			if err := parseWeightTensor(msg, wt); err != nil {
				return err
			}
			switch num {
			case binExpAvg:
				g.ExpAvg = wt
			case binExpAvgSq:
				g.ExpAvgSq = wt
			case binMaxExpAvgSq:
				g.MaxExpAvgSq = wt
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendMetadata(b []byte, md *CheckpointMetadata) []byte {
	b = protowire.AppendTag(b, binVersion, protowire.BytesType)
	b = protowire.AppendString(b, md.Version)
	b = protowire.AppendTag(b, binFramework, protowire.BytesType)
	b = protowire.AppendString(b, md.Framework)
	if !md.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, binCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(md.CreatedAt.UnixNano()))
	}
	if md.Description != "" {
		b = protowire.AppendTag(b, binDescription, protowire.BytesType)
		b = protowire.AppendString(b, md.Description)
	}
	for _, tag := range md.Tags {
		b = protowire.AppendTag(b, binTag, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	return b
}

func parseMetadata(b []byte, md *CheckpointMetadata) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case binVersion:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			md.Version = v
		case binFramework:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			md.Framework = v
		case binCreatedAt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			md.CreatedAt = time.Unix(0, int64(v))
		case binDescription:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			md.Description = v
		case binTag:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			md.Tags = append(md.Tags, v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
