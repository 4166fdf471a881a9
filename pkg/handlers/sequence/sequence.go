// Package sequence implements the pure-local, no-network tool handlers:
// GC content, translation, reverse complement, ORF finding, codon usage and
// pairwise similarity. None of these retry or time out against anything;
// they are deterministic functions of their input.
package sequence

import (
	"context"
	"strings"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
)

// Register wires every pure-local handler into d under its tool name.
func Register(d *dispatcher.Dispatcher) {
	d.Register("compute_gc", ComputeGC)
	d.Register("translate_dna", TranslateDNA)
	d.Register("reverse_complement", ReverseComplement)
	d.Register("find_orfs", FindORFs)
	d.Register("codon_usage", CodonUsage)
	d.Register("sequence_similarity", SequenceSimilarity)
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", broker.New(broker.InvalidArguments, "%s must be a non-empty string", name)
	}
	return strings.ToUpper(v), nil
}

// ComputeGC returns the percentage of G/C bases in sequence, rounded to the
// nearest integer the way the browser's status bar displays it.
func ComputeGC(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	seq, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}

	if len(seq) == 0 {
		return map[string]any{"gcContent": 0}, nil
	}

	var gc int
	for _, b := range seq {
		if b == 'G' || b == 'C' {
			gc++
		}
	}

	pct := int((float64(gc) / float64(len(seq)) * 100) + 0.5)
	return map[string]any{"gcContent": pct}, nil
}

var complement = map[byte]byte{'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C', 'N': 'N'}

// ReverseComplement returns the reverse complement of sequence.
// reverse_complement(reverse_complement(s)) == s for any sequence of
// A/T/C/G, since complement is its own inverse and reversal is involutive.
func ReverseComplement(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	seq, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		c, ok := complement[seq[len(seq)-1-i]]
		if !ok {
			c = 'N'
		}
		out[i] = c
	}

	return map[string]any{"sequence": string(out)}, nil
}

var codonTable = buildCodonTable()

// TranslateDNA translates a DNA sequence to a one-letter amino-acid string
// starting at the given reading frame (0, 1 or 2). Translation is a pure
// function of (dna, frame): no upstream, no state.
func TranslateDNA(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	dna, err := stringArg(args, "dna")
	if err != nil {
		return nil, broker.New(broker.InvalidArguments, "dna must be a non-empty string")
	}

	frame := 0
	if f, ok := args["frame"]; ok {
		frame = frameToInt(f)
	}
	if frame < 0 || frame > 2 {
		return nil, broker.New(broker.InvalidArguments, "frame must be 0, 1 or 2")
	}

	var sb strings.Builder
	for i := frame; i+3 <= len(dna); i += 3 {
		codon := dna[i : i+3]
		aa, ok := codonTable[codon]
		if !ok {
			aa = 'X'
		}
		if aa == '*' {
			break
		}
		sb.WriteByte(aa)
	}

	return map[string]any{"protein": sb.String()}, nil
}

func frameToInt(v any) int {
	switch t := v.(type) {
	case string:
		switch t {
		case "0":
			return 0
		case "1":
			return 1
		case "2":
			return 2
		}
	case float64:
		return int(t)
	case int:
		return t
	}
	return -1
}

// ORF is a single open reading frame found by FindORFs.
type ORF struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Frame   int    `json:"frame"`
	Protein string `json:"protein"`
}

// FindORFs scans all three forward reading frames for ATG...stop runs at
// least minLength nucleotides long.
func FindORFs(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	seq, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}

	minLength := 100
	if v, ok := args["minLength"]; ok {
		if f, ok := v.(float64); ok {
			minLength = int(f)
		}
	}

	var orfs []ORF
	for frame := 0; frame < 3; frame++ {
		i := frame
		for i+3 <= len(seq) {
			if seq[i:i+3] != "ATG" {
				i += 3
				continue
			}
			start := i
			var sb strings.Builder
			j := i
			for j+3 <= len(seq) {
				codon := seq[j : j+3]
				aa, ok := codonTable[codon]
				if !ok {
					aa = 'X'
				}
				j += 3
				if aa == '*' {
					break
				}
				sb.WriteByte(aa)
			}
			length := j - start
			if length >= minLength {
				orfs = append(orfs, ORF{Start: start, End: j, Frame: frame, Protein: sb.String()})
			}
			i = j
			if i == start {
				i += 3
			}
		}
	}

	return map[string]any{"orfs": orfs}, nil
}

// CodonUsage counts codon frequency across every complete codon in
// sequence, starting from frame 0.
func CodonUsage(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	seq, err := stringArg(args, "sequence")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var total int
	for i := 0; i+3 <= len(seq); i += 3 {
		counts[seq[i:i+3]]++
		total++
	}

	usage := make(map[string]float64, len(counts))
	for codon, n := range counts {
		usage[codon] = float64(n) / float64(total)
	}

	return map[string]any{"counts": counts, "frequency": usage, "totalCodons": total}, nil
}

// SequenceSimilarity computes a simple ungapped percent-identity score
// between two equal-or-unequal-length sequences, comparing position by
// position up to the shorter length.
func SequenceSimilarity(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
	a, err := stringArg(args, "sequenceA")
	if err != nil {
		return nil, err
	}
	b, err := stringArg(args, "sequenceB")
	if err != nil {
		return nil, err
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return map[string]any{"identity": 0.0, "compared": 0}, nil
	}

	var matches int
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}

	return map[string]any{
		"identity": float64(matches) / float64(n),
		"compared": n,
	}, nil
}

func buildCodonTable() map[string]byte {
	bases := "TCAG"
	aas := "FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG"
	table := make(map[string]byte, 64)
	i := 0
	for _, b1 := range bases {
		for _, b2 := range bases {
			for _, b3 := range bases {
				codon := string(b1) + string(b2) + string(b3)
				table[codon] = aas[i]
				i++
			}
		}
	}
	return table
}
