package gbm

import (
	"math"

	"github.com/pkg/errors"
)

//Objective is the loss collaborator. Transform is the link function from
//raw ensemble output to score space; Gradients fills the first and second
//derivatives of the loss with respect to the raw output, evaluated at the
//transformed score. Both operate on vectors of length RawSize.
type Objective interface {
	Name() string
	RawSize() int
	Transform(raw, score []float64)
	Gradients(label, score, grad, hess []float64)
	InitRaw(avgLabel []float64) []float64
}

//ObjectiveByName resolves a configured objective. numClasses is only
//consulted by the softmax objective.
func ObjectiveByName(name string, numClasses int) (Objective, error) {
	switch name {
	case "square":
		return SquareLoss{}, nil
	case "logistic":
		return LogisticLoss{}, nil
	case "softmax":
		if numClasses < 2 {
			return nil, errors.Errorf("softmax objective needs at least 2 classes, got %d", numClasses)
		}
		return SoftmaxLoss{NumClasses: numClasses}, nil
	default:
		return nil, errors.Errorf("unknown objective %q", name)
	}
}

//SquareLoss is the squared error regression objective with an identity
//link.
type SquareLoss struct{}

func (SquareLoss) Name() string { return "square" }

func (SquareLoss) RawSize() int { return 1 }

func (SquareLoss) Transform(raw, score []float64) {
	copy(score, raw)
}

func (SquareLoss) Gradients(label, score, grad, hess []float64) {
	grad[0] = score[0] - label[0]
	hess[0] = 1
}

func (SquareLoss) InitRaw(avgLabel []float64) []float64 {
	return []float64{avgLabel[0]}
}

//LogisticLoss is the binary classification objective with a sigmoid link.
type LogisticLoss struct{}

func (LogisticLoss) Name() string { return "logistic" }

func (LogisticLoss) RawSize() int { return 1 }

func (LogisticLoss) Transform(raw, score []float64) {
	score[0] = sigmoid(raw[0])
}

func (LogisticLoss) Gradients(label, score, grad, hess []float64) {
	grad[0] = score[0] - label[0]
	hess[0] = score[0] * (1 - score[0])
}

func (LogisticLoss) InitRaw(avgLabel []float64) []float64 {
	p := clampProb(avgLabel[0])
	return []float64{math.Log(p / (1 - p))}
}

//SoftmaxLoss is the multiclass objective. Labels are one-hot vectors of
//length NumClasses and the link is the softmax.
type SoftmaxLoss struct {
	NumClasses int
}

func (s SoftmaxLoss) Name() string { return "softmax" }

func (s SoftmaxLoss) RawSize() int { return s.NumClasses }

func (s SoftmaxLoss) Transform(raw, score []float64) {
	max := raw[0]
	for _, v := range raw[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for k, v := range raw {
		score[k] = math.Exp(v - max)
		sum += score[k]
	}
	for k := range score {
		score[k] /= sum
	}
}

func (s SoftmaxLoss) Gradients(label, score, grad, hess []float64) {
	for k := range score {
		grad[k] = score[k] - label[k]
		hess[k] = score[k] * (1 - score[k])
	}
}

func (s SoftmaxLoss) InitRaw(avgLabel []float64) []float64 {
	raw := make([]float64, s.NumClasses)
	for k, p := range avgLabel {
		raw[k] = math.Log(clampProb(p))
	}
	return raw
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

//clampProb keeps probabilities away from 0 and 1 so the inverse links
//stay finite.
func clampProb(p float64) float64 {
	const eps = 1e-15
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
