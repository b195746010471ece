// Public domain.

package trace

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Rhat returns the split potential scale reduction per column and its
// mean over the variable's columns.  Values near 1 indicate the chains
// agree; materially larger values indicate non-convergence.
func Rhat(v *Var) (cols []float64, mean float64) {
	w := v.Width()
	cols = make([]float64, w)
	for c := 0; c < w; c++ {
		cols[c] = rhat1(splitChains(v, c))
	}
	return cols, meanOf(cols)
}

// ESS returns the effective sample size per column and its mean over
// the columns, after splitting each chain in half.
func ESS(v *Var) (cols []float64, mean float64) {
	w := v.Width()
	cols = make([]float64, w)
	for c := 0; c < w; c++ {
		cols[c] = ess1(splitChains(v, c))
	}
	return cols, meanOf(cols)
}

// splitChains extracts column c of each chain and splits it in half,
// truncating all chains to the shortest even length.
func splitChains(v *Var, c int) [][]float64 {
	n := v.Draws() / 2 * 2
	half := n / 2
	var out [][]float64
	for _, ch := range v.Data {
		s := make([]float64, n)
		for i := 0; i < n; i++ {
			s[i] = ch[i][c]
		}
		out = append(out, s[:half], s[half:])
	}
	return out
}

func rhat1(chains [][]float64) float64 {
	m := float64(len(chains))
	n := float64(len(chains[0]))
	if n < 2 || m < 2 {
		return math.NaN()
	}
	means := make([]float64, len(chains))
	w := 0.
	for i, c := range chains {
		mu, sd := stat.MeanStdDev(c, nil)
		means[i] = mu
		w += sd * sd / m
	}
	b := n * stat.Variance(means, nil)
	if w == 0 {
		return math.NaN()
	}
	vhat := (n-1)/n*w + b/n
	return math.Sqrt(vhat / w)
}

// ess1 estimates the effective sample size of split chains with the
// Geyer initial monotone sequence on chain-averaged autocorrelations.
func ess1(chains [][]float64) float64 {
	m := float64(len(chains))
	n := len(chains[0])
	if n < 4 {
		return math.NaN()
	}
	w := 0.
	means := make([]float64, len(chains))
	for i, c := range chains {
		mu, sd := stat.MeanStdDev(c, nil)
		means[i] = mu
		w += sd * sd / m
	}
	b := float64(n) * stat.Variance(means, nil)
	vhat := float64(n-1)/float64(n)*w + b/float64(n)
	if vhat <= 0 {
		return math.NaN()
	}

	// mean autocovariance across chains at each lag
	acov := func(t int) float64 {
		s := 0.
		for i, c := range chains {
			mu := means[i]
			a := 0.
			for k := 0; k+t < n; k++ {
				a += (c[k] - mu) * (c[k+t] - mu)
			}
			s += a / float64(n)
		}
		return s / m
	}

	rho := func(t int) float64 { return 1 - (w-acov(t))/vhat }

	// sum consecutive pairs while they stay positive, enforcing the
	// monotone decrease of the pair sums
	sum := rho(0) // = 1 - (w - acov(0))/vhat, near 1
	prevPair := math.Inf(1)
	for t := 1; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if pair < 0 {
			break
		}
		if pair > prevPair {
			pair = prevPair
		}
		sum += pair
		prevPair = pair
	}
	tau := 2*sum - 1
	if tau < 1 {
		tau = 1
	}
	return m * float64(n) / tau
}

func meanOf(x []float64) float64 {
	s, c := 0., 0.
	for _, v := range x {
		if !math.IsNaN(v) {
			s += v
			c++
		}
	}
	if c == 0 {
		return math.NaN()
	}
	return s / c
}
