package tagger

import "glassmon/internal/model"

type Assignment struct {
	Defect model.Defect
	Tag    int64
}

// Assign numbers a batch already ordered by detection time: row i gets
// maxTag+1+i.
func Assign(batch []model.Defect, maxTag int64) []Assignment {
	out := make([]Assignment, len(batch))
	for i, d := range batch {
		out[i] = Assignment{Defect: d, Tag: maxTag + 1 + int64(i)}
	}
	return out
}
