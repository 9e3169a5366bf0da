package tcd

import "math"

// inferenceCoefficient names a derived constituent together with the
// fixed amplitude ratio (relative to its principal) given by Schureman
// 1971, article 230.
type inferenceCoefficient struct {
	name  string
	ratio float64
}

const (
	m2Coefficient = 0.9085
	o1Coefficient = 0.3771
)

var semiDiurnalInference = []inferenceCoefficient{
	{"N2", 0.1759},
	{"NU2", 0.0341},
	{"MU2", 0.0219},
	{"2N2", 0.0235},
	{"LDA2", 0.0066},
	{"T2", 0.0248},
	{"R2", 0.0035},
	{"L2", 0.0251},
	{"K2", 0.1151},
	{"KJ2", 0.0064},
}

var diurnalInference = []inferenceCoefficient{
	{"OO1", 0.0163},
	{"M1", 0.0209},
	{"J1", 0.0297},
	{"RHO1", 0.0142},
	{"Q1", 0.0730},
	{"2Q1", 0.0097},
	{"P1", 0.1755},
	{"PI1", 0.0103},
	{"PHI1", 0.0076},
	{"PSI1", 0.0042},
}

// InferConstituents fills in a reference station's missing semi-diurnal
// and diurnal amplitudes/epochs from its M2, S2, K1, O1 values, mutating
// station in place. It reports whether any inference was actually
// performed; a false result (missing preconditions) is not an error.
func InferConstituents(ct *ConstituentTable, names []string, station *Station) bool {
	if station.Reference == nil {
		return false
	}
	rb := station.Reference
	if len(rb.Amplitudes) == 0 || len(rb.Epochs) == 0 {
		return false
	}

	m2 := indexOfConstituent(names, "M2")
	s2 := indexOfConstituent(names, "S2")
	k1 := indexOfConstituent(names, "K1")
	o1 := indexOfConstituent(names, "O1")
	if m2 < 0 || s2 < 0 || k1 < 0 || o1 < 0 {
		return false
	}
	if !(rb.Amplitudes[m2] > 0 && rb.Amplitudes[s2] > 0 && rb.Amplitudes[k1] > 0 && rb.Amplitudes[o1] > 0) {
		return false
	}

	performed := false
	performed = inferGroup(ct, names, rb, semiDiurnalInference, m2, s2, m2Coefficient) || performed
	performed = inferGroup(ct, names, rb, diurnalInference, o1, k1, o1Coefficient) || performed

	return performed
}

// inferGroup applies the amplitude-ratio/epoch-interpolation recipe to
// every target in group that exists in the constituent table and is still
// at its initial (zero amplitude, zero epoch) state.
func inferGroup(ct *ConstituentTable, names []string, rb *ReferenceBody, group []inferenceCoefficient, principal1, principal2 int, principal_coeff float64) bool {
	performed := false

	e1 := rb.Epochs[principal1]
	e2 := rb.Epochs[principal2]
	if math.Abs(e2-e1) > 180 {
		if e1 < e2 {
			e1 += 360
		} else {
			e2 += 360
		}
	}

	for _, target := range group {
		idx := indexOfConstituent(names, target.name)
		if idx < 0 {
			continue
		}
		if rb.Amplitudes[idx] != 0 || rb.Epochs[idx] != 0 {
			continue
		}

		rb.Amplitudes[idx] = (target.ratio / principal_coeff) * rb.Amplitudes[principal1]

		r := (ct.Speed[idx] - ct.Speed[principal1]) / (ct.Speed[principal2] - ct.Speed[principal1])
		rb.Epochs[idx] = e1 + r*(e2-e1)

		performed = true
	}

	return performed
}
