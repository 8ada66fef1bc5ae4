package ir

import "math/big"

// Polynomial is an affine expression over named index symbols with
// rational coefficients, supporting construction from an index name,
// addition, scalar multiplication, coefficient extraction p[name], and
// flooring a coefficient. Coefficients are exact rationals (math/big.Rat)
// because post-op-input stride derivation (internal/unify's Integrate)
// floors a coefficient, and float64 drift would silently corrupt strides
// for large tile/stride values.
type Polynomial struct {
	terms map[string]*big.Rat
}

// NewPolynomial builds the single-term polynomial `1*name`.
func NewPolynomial(name string) Polynomial {
	return Polynomial{terms: map[string]*big.Rat{name: big.NewRat(1, 1)}}
}

// ZeroPolynomial is the empty polynomial (coefficient 0 for every index).
func ZeroPolynomial() Polynomial {
	return Polynomial{terms: map[string]*big.Rat{}}
}

// Add returns p + q.
func (p Polynomial) Add(q Polynomial) Polynomial {
	out := map[string]*big.Rat{}
	for k, v := range p.terms {
		out[k] = new(big.Rat).Set(v)
	}
	for k, v := range q.terms {
		if cur, ok := out[k]; ok {
			cur.Add(cur, v)
		} else {
			out[k] = new(big.Rat).Set(v)
		}
	}
	return Polynomial{terms: out}
}

// Scale returns p * scalar (an integer stride, the only scalar this
// planner ever multiplies a Polynomial by).
func (p Polynomial) Scale(scalar int64) Polynomial {
	out := map[string]*big.Rat{}
	s := big.NewRat(scalar, 1)
	for k, v := range p.terms {
		nv := new(big.Rat).Mul(v, s)
		out[k] = nv
	}
	return Polynomial{terms: out}
}

// Coeff extracts the rational coefficient of `name`, 0 if absent.
func (p Polynomial) Coeff(name string) *big.Rat {
	if v, ok := p.terms[name]; ok {
		return v
	}
	return big.NewRat(0, 1)
}

// Floor returns floor(p[name]) as an int64.
func (p Polynomial) Floor(name string) int64 {
	r := p.Coeff(name)
	q := new(big.Int).Quo(r.Num(), r.Denom())
	// big.Int.Quo truncates toward zero; correct to floor for negative
	// non-exact ratios.
	if r.Sign() < 0 {
		rem := new(big.Int).Mul(q, r.Denom())
		if rem.Cmp(r.Num()) != 0 {
			q.Sub(q, big.NewInt(1))
		}
	}
	return q.Int64()
}
