package pipeline

import (
	"fmt"
	"strings"
)

func (d Definition[S]) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("%w: %s has no stages", ErrInvalidDefinition, d.Name)
	}
	index := make(map[StageID]int, len(d.Stages))
	for i, st := range d.Stages {
		if st.ID == "" {
			return fmt.Errorf("%w: %s stage #%d has no id", ErrInvalidDefinition, d.Name, i)
		}
		if _, dup := index[st.ID]; dup {
			return fmt.Errorf("%w: %s declares stage %s twice", ErrInvalidDefinition, d.Name, st.ID)
		}
		index[st.ID] = i
	}
	if d.InterruptAfter != "" {
		if _, ok := index[d.InterruptAfter]; !ok {
			return fmt.Errorf("%w: %s interrupt point %s is not a stage", ErrInvalidDefinition, d.Name, d.InterruptAfter)
		}
	}

	starts := []int{0}
	if d.Entry != nil {
		if d.Entry.Route == nil || len(d.Entry.Candidates) == 0 {
			return fmt.Errorf("%w: %s entry needs a route and candidates", ErrInvalidDefinition, d.Name)
		}
		starts = starts[:0]
		for _, c := range d.Entry.Candidates {
			i, ok := index[c]
			if !ok {
				return fmt.Errorf("%w: %s entry candidate %s is not a stage", ErrInvalidDefinition, d.Name, c)
			}
			starts = append(starts, i)
		}
	}
	for _, start := range starts {
		if err := d.checkReads(start); err != nil {
			return err
		}
	}
	return nil
}

// checkReads 静态检查：从 start 出发，每个阶段读取的字段都必须来自种子或更早阶段的写入。
func (d Definition[S]) checkReads(start int) error {
	available := make(map[string]bool, len(d.Seeds))
	for _, f := range d.Seeds {
		available[f] = true
	}
	for _, st := range d.Stages[start:] {
		var missing []string
		for _, f := range st.Reads {
			if !available[f] {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s stage %s reads %s, which no seed or earlier stage on the path from %s provides",
				ErrInvalidDefinition, d.Name, st.ID, strings.Join(missing, ", "), d.Stages[start].ID)
		}
		for _, f := range st.Writes {
			available[f] = true
		}
	}
	return nil
}
