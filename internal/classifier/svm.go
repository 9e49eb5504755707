package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mineral-classifier/internal/apperr"
)

const (
	svmC        = 1.0
	svmEps      = 1e-3
	svmTau      = 1e-12
	svmMaxIter  = 100000
	svmMinProb  = 1e-7
	plattIter   = 100
	plattStep   = 1e-10
	plattSigma  = 1e-12
	plattEps    = 1e-5
	couplingEps = 0.005
)

// SVM is a one-vs-one RBF support vector classifier with Platt-scaled
// pairwise probabilities combined by pairwise coupling.
type SVM struct {
	probabilityRule

	C     float64
	Gamma float64 // 0 selects 1 / (features * Var(X))

	gamma   float64
	classes int
	pairs   []*binarySVM
}

// binarySVM separates class Pos (+1) from class Neg (-1).
type binarySVM struct {
	Pos, Neg int
	sv       [][]float64
	coef     []float64 // alpha_i * y_i
	rho      float64
	a, b     float64 // sigmoid P(+1|f) = 1 / (1 + exp(a*f + b))
}

// NewSVM returns a support-vector model with C = 1 and automatic gamma.
func NewSVM() *SVM {
	return &SVM{C: svmC}
}

func (m *SVM) Kind() Kind { return SupportVector }

// Fit trains one binary machine per class pair.
func (m *SVM) Fit(x *mat.Dense, y []int, classes int) error {
	n, dims := x.Dims()
	if n == 0 || len(y) != n {
		return apperr.Training("svm.fit", "need matching samples and labels, got %d rows and %d labels", n, len(y))
	}
	m.classes = classes
	m.pairs = nil

	m.gamma = m.Gamma
	if m.gamma <= 0 {
		v := stat.PopVariance(mat.DenseCopyOf(x).RawMatrix().Data, nil)
		if v > 0 {
			m.gamma = 1 / (float64(dims) * v)
		} else {
			m.gamma = 1
		}
	}
	if classes < 2 {
		return nil
	}

	byClass := make([][]int, classes)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	for p := 0; p < classes; p++ {
		for q := p + 1; q < classes; q++ {
			var rows [][]float64
			var labels []float64
			for _, i := range byClass[p] {
				rows = append(rows, x.RawRowView(i))
				labels = append(labels, 1)
			}
			for _, i := range byClass[q] {
				rows = append(rows, x.RawRowView(i))
				labels = append(labels, -1)
			}
			b := m.trainPair(rows, labels)
			b.Pos, b.Neg = p, q
			m.pairs = append(m.pairs, b)
		}
	}
	return nil
}

func (m *SVM) kernel(a, b []float64) float64 {
	return math.Exp(-m.gamma * sqDist(a, b))
}

// trainPair solves the binary dual with SMO using the maximal violating
// pair working set, then fits the Platt sigmoid on the training decision
// values.
func (m *SVM) trainPair(rows [][]float64, y []float64) *binarySVM {
	n := len(rows)
	if n == 0 {
		return &binarySVM{}
	}
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			v := m.kernel(rows[i], rows[j])
			k[i][j] = v
			k[j][i] = v
		}
	}

	c := m.C
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	for iter := 0; iter < svmMaxIter; iter++ {
		i, j := -1, -1
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			v := -y[t] * grad[t]
			if (y[t] > 0 && alpha[t] < c) || (y[t] < 0 && alpha[t] > 0) {
				if v >= gmax {
					gmax, i = v, t
				}
			}
			if (y[t] > 0 && alpha[t] > 0) || (y[t] < 0 && alpha[t] < c) {
				if v <= gmin {
					gmin, j = v, t
				}
			}
		}
		if i < 0 || j < 0 || gmax-gmin < svmEps {
			break
		}

		qij := y[i] * y[j] * k[i][j]
		oldI, oldJ := alpha[i], alpha[j]
		if y[i] != y[j] {
			quad := k[i][i] + k[j][j] + 2*qij
			if quad <= 0 {
				quad = svmTau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j], alpha[i] = 0, diff
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, -diff
			}
			if diff > 0 {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, c-diff
				}
			} else if alpha[j] > c {
				alpha[j], alpha[i] = c, c+diff
			}
		} else {
			quad := k[i][i] + k[j][j] - 2*qij
			if quad <= 0 {
				quad = svmTau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > c {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, sum-c
				}
			} else if alpha[j] < 0 {
				alpha[j], alpha[i] = 0, sum
			}
			if sum > c {
				if alpha[j] > c {
					alpha[j], alpha[i] = c, sum-c
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			grad[t] += y[i]*y[t]*k[i][t]*dI + y[j]*y[t]*k[j][t]*dJ
		}
	}

	b := &binarySVM{rho: computeRho(alpha, grad, y, c)}
	for t := 0; t < n; t++ {
		if alpha[t] > 0 {
			b.sv = append(b.sv, rows[t])
			b.coef = append(b.coef, alpha[t]*y[t])
		}
	}

	dec := make([]float64, n)
	for t := range rows {
		dec[t] = m.decision(b, rows[t])
	}
	b.a, b.b = fitSigmoid(dec, y)
	return b
}

func computeRho(alpha, grad, y []float64, c float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	var sum float64
	free := 0
	for t := range alpha {
		yg := y[t] * grad[t]
		switch {
		case alpha[t] >= c:
			if y[t] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case alpha[t] <= 0:
			if y[t] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sum += yg
		}
	}
	if free > 0 {
		return sum / float64(free)
	}
	return (ub + lb) / 2
}

func (m *SVM) decision(b *binarySVM, p []float64) float64 {
	var f float64
	for i, sv := range b.sv {
		f += b.coef[i] * m.kernel(sv, p)
	}
	return f - b.rho
}

// fitSigmoid finds a, b minimizing the regularized negative log likelihood
// of P(+1|f) = 1/(1+exp(a*f+b)) with a backtracking Newton method.
func fitSigmoid(dec, labels []float64) (float64, float64) {
	var prior1, prior0 float64
	for _, l := range labels {
		if l > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	t := make([]float64, len(labels))
	for i, l := range labels {
		if l > 0 {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	objective := func(a, b float64) float64 {
		var f float64
		for i, d := range dec {
			fApB := d*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for iter := 0; iter < plattIter; iter++ {
		h11, h22, h21 := plattSigma, plattSigma, 0.0
		var g1, g2 float64
		for i, d := range dec {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := t[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < plattEps && math.Abs(g2) < plattEps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= plattStep {
			na, nb := a+step*dA, b+step*dB
			if nf := objective(na, nb); nf < fval+0.0001*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < plattStep {
			break
		}
	}
	return a, b
}

func sigmoid(f, a, b float64) float64 {
	fApB := f*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

// Probabilities returns the class membership estimates for p.
func (m *SVM) Probabilities(p []float64) []float64 {
	prob, _ := m.evaluate(p)
	return prob
}

func (m *SVM) evaluate(p []float64) ([]float64, []int) {
	k := m.classes
	if k < 2 {
		return []float64{1}, []int{1}
	}
	r := make([][]float64, k)
	for i := range r {
		r[i] = make([]float64, k)
	}
	votes := make([]int, k)
	for _, b := range m.pairs {
		f := m.decision(b, p)
		if f > 0 {
			votes[b.Pos]++
		} else {
			votes[b.Neg]++
		}
		rp := math.Min(math.Max(sigmoid(f, b.a, b.b), svmMinProb), 1-svmMinProb)
		r[b.Pos][b.Neg] = rp
		r[b.Neg][b.Pos] = 1 - rp
	}
	if k == 2 {
		return []float64{r[0][1], r[1][0]}, votes
	}
	return coupleProbabilities(r), votes
}

// coupleProbabilities combines pairwise estimates r[i][j] ≈ P(i | i or j)
// into class probabilities (Wu, Lin and Weng, method 2).
func coupleProbabilities(r [][]float64) []float64 {
	k := len(r)
	q := make([][]float64, k)
	for t := range q {
		q[t] = make([]float64, k)
		for j := 0; j < k; j++ {
			if j == t {
				continue
			}
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = -r[j][t] * r[t][j]
		}
	}

	p := make([]float64, k)
	qp := make([]float64, k)
	for t := range p {
		p[t] = 1 / float64(k)
	}
	eps := couplingEps / float64(k)
	for iter := 0; iter < max(100, k); iter++ {
		var pqp float64
		for t := 0; t < k; t++ {
			qp[t] = 0
			for j := 0; j < k; j++ {
				qp[t] += q[t][j] * p[j]
			}
			pqp += p[t] * qp[t]
		}
		var maxErr float64
		for t := 0; t < k; t++ {
			maxErr = math.Max(maxErr, math.Abs(qp[t]-pqp))
		}
		if maxErr < eps {
			break
		}
		for t := 0; t < k; t++ {
			diff := (-qp[t] + pqp) / q[t][t]
			p[t] += diff
			pqp = (pqp + diff*(diff*q[t][t]+2*qp[t])) / (1 + diff) / (1 + diff)
			for j := 0; j < k; j++ {
				qp[j] = (qp[j] + diff*q[t][j]) / (1 + diff)
				p[j] /= 1 + diff
			}
		}
	}
	return p
}

// Predict returns the pairwise vote winner (ties to the lowest class) and
// the maximum coupled probability.
func (m *SVM) Predict(p []float64) (int, float64) {
	prob, votes := m.evaluate(p)
	class := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[class] {
			class = c
		}
	}
	return class, prob[argmax(prob)]
}
