// Package protein implements the pure-local protein analysis handlers:
// physicochemical property calculation and domain-composition-based
// function inference. Like pkg/handlers/sequence, these are deterministic
// functions of their input with no network calls, retries or timeouts.
package protein

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
)

// Register wires both pure-local protein handlers into d.
func Register(d *dispatcher.Dispatcher) {
	d.Register("compute_protein_properties", ComputeProperties)
	d.Register("predict_protein_function", PredictFunction)
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", broker.New(broker.InvalidArguments, "%s must be a non-empty string", name)
	}
	return strings.ToUpper(v), nil
}

// averageResidueMass is the average monoisotopic-free residue mass in
// daltons (full amino acid minus one water, as in a peptide bond), keyed
// by single-letter code.
var averageResidueMass = map[byte]float64{
	'A': 71.0788, 'R': 156.1875, 'N': 114.1038, 'D': 115.0886,
	'C': 103.1388, 'E': 129.1155, 'Q': 128.1307, 'G': 57.0519,
	'H': 137.1411, 'I': 113.1594, 'L': 113.1594, 'K': 128.1741,
	'M': 131.1926, 'F': 147.1766, 'P': 97.1167, 'S': 87.0782,
	'T': 101.1051, 'W': 186.2132, 'Y': 163.1760, 'V': 99.1326,
}

const waterMass = 18.01528

// kyteDoolittle is the standard hydropathy index per residue.
var kyteDoolittle = map[byte]float64{
	'A': 1.8, 'R': -4.5, 'N': -3.5, 'D': -3.5, 'C': 2.5,
	'E': -3.5, 'Q': -3.5, 'G': -0.4, 'H': -3.2, 'I': 4.5,
	'L': 3.8, 'K': -3.9, 'M': 1.9, 'F': 2.8, 'P': -1.6,
	'S': -0.8, 'T': -0.7, 'W': -0.9, 'Y': -1.3, 'V': 4.2,
}

// pKa values used by the pI bisection, from the EMBOSS "pKa" table
// (N-terminus, C-terminus and ionizable side chains).
var pKa = map[byte]float64{
	'C': 8.3, 'D': 3.9, 'E': 4.1, 'H': 6.0,
	'K': 10.5, 'R': 12.5, 'Y': 10.1,
}

const (
	nTermPKa = 9.0
	cTermPKa = 2.0
)

// ComputeProperties returns mass (daltons), isoelectric point and GRAVY
// hydropathy for a protein sequence.
func ComputeProperties(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	sequence, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(sequence); i++ {
		if _, ok := averageResidueMass[sequence[i]]; !ok {
			return nil, broker.New(broker.InvalidArguments, "unrecognized residue %q at position %d", sequence[i], i)
		}
	}

	mass := waterMass
	var hydropathySum float64
	counts := map[byte]int{}
	for i := 0; i < len(sequence); i++ {
		r := sequence[i]
		mass += averageResidueMass[r]
		hydropathySum += kyteDoolittle[r]
		counts[r]++
	}

	return map[string]any{
		"success":          true,
		"length":           len(sequence),
		"massDaltons":       math.Round(mass*100) / 100,
		"isoelectricPoint": math.Round(isoelectricPoint(counts)*100) / 100,
		"gravy":            math.Round(hydropathySum/float64(len(sequence))*1000) / 1000,
	}, nil
}

// isoelectricPoint finds the pH at which the sequence's net charge is
// zero by bisection over pH 0..14, the standard approach for computing
// pI without a closed-form solution to the charge equation.
func isoelectricPoint(counts map[byte]int) float64 {
	lo, hi := 0.0, 14.0
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		if netCharge(counts, mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func netCharge(counts map[byte]int, pH float64) float64 {
	charge := 1 / (1 + math.Pow(10, pH-nTermPKa))
	charge -= 1 / (1 + math.Pow(10, cTermPKa-pH))

	for residue, pk := range pKa {
		n := float64(counts[residue])
		if n == 0 {
			continue
		}
		switch residue {
		case 'D', 'E', 'C', 'Y':
			charge -= n / (1 + math.Pow(10, pk-pH))
		case 'K', 'R', 'H':
			charge += n / (1 + math.Pow(10, pH-pk))
		}
	}
	return charge
}

// motif pairs a simple substring/composition test with the functional
// annotation it implies. This is a coarse heuristic, not a domain
// search — callers who need real domain calls should use
// analyze_interpro_domains instead.
type motif struct {
	annotation string
	matches    func(sequence string) bool
}

var motifs = []motif{
	{
		annotation: "signal peptide (N-terminal hydrophobic stretch)",
		matches: func(seq string) bool {
			return len(seq) >= 15 && averageHydropathy(seq[:15]) > 1.6
		},
	},
	{
		annotation: "nuclear localization signal (basic residue cluster)",
		matches: func(seq string) bool {
			return strings.Contains(seq, "KKKR") || strings.Contains(seq, "KRKR") || strings.Contains(seq, "PKKKRKV")
		},
	},
	{
		annotation: "transmembrane helix candidate",
		matches: func(seq string) bool {
			return hasHydrophobicWindow(seq, 18, 1.8)
		},
	},
	{
		annotation: "zinc finger motif (C2H2-like spacing)",
		matches: func(seq string) bool {
			return strings.Contains(seq, "CPVCG") || zincFingerSpacing(seq)
		},
	},
	{
		annotation: "proline-rich region",
		matches: func(seq string) bool {
			return strings.Count(seq, "P")*100/len(seq) > 15
		},
	},
}

// PredictFunction reports which coarse functional motifs a sequence's
// composition matches.
func PredictFunction(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	sequence, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}

	var found []string
	for _, m := range motifs {
		if m.matches(sequence) {
			found = append(found, m.annotation)
		}
	}
	sort.Strings(found)

	return map[string]any{
		"success":     true,
		"annotations": found,
	}, nil
}

func averageHydropathy(window string) float64 {
	var sum float64
	for i := 0; i < len(window); i++ {
		sum += kyteDoolittle[window[i]]
	}
	return sum / float64(len(window))
}

func hasHydrophobicWindow(seq string, size int, threshold float64) bool {
	if len(seq) < size {
		return false
	}
	for i := 0; i+size <= len(seq); i++ {
		if averageHydropathy(seq[i:i+size]) >= threshold {
			return true
		}
	}
	return false
}

// zincFingerSpacing checks for the classic C-x(2,4)-C...H-x(3,5)-H
// spacing of a C2H2 zinc finger.
func zincFingerSpacing(seq string) bool {
	cPattern := regexpFindCCSpacing(seq)
	return cPattern
}

func regexpFindCCSpacing(seq string) bool {
	for i := 0; i < len(seq); i++ {
		if seq[i] != 'C' {
			continue
		}
		for gap := 2; gap <= 4; gap++ {
			j := i + 1 + gap
			if j < len(seq) && seq[j] == 'C' {
				if hasLaterHH(seq, j+1) {
					return true
				}
			}
		}
	}
	return false
}

func hasLaterHH(seq string, from int) bool {
	for i := from; i < len(seq); i++ {
		if seq[i] != 'H' {
			continue
		}
		for gap := 3; gap <= 5; gap++ {
			j := i + 1 + gap
			if j < len(seq) && seq[j] == 'H' {
				return true
			}
		}
	}
	return false
}
