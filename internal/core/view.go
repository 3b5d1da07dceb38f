package core

import "campreg/pkg/domain"

// CompleteLabel names the terminal state after the last step.
const CompleteLabel = "Complete"

// StepView is the read-only state of one step.
type StepView struct {
	Index   int      `json:"index"`
	Label   string   `json:"label"`
	Kind    StepKind `json:"kind"`
	Valid   bool     `json:"valid"`
	Current bool     `json:"current"`
	Missing []string `json:"missing,omitempty"`
}

// ReviewSummary is what the review step shows back to the user.
type ReviewSummary struct {
	PersonalInfoFields int      `json:"personalInfoFields"`
	Camps              []string `json:"camps"`
}

// WizardView is the projection handed to the interface layer.
type WizardView struct {
	Index      int                       `json:"index"`
	StepCount  int                       `json:"stepCount"`
	Label      string                    `json:"label"`
	Complete   bool                      `json:"complete"`
	Submitting bool                      `json:"submitting"`
	Steps      []StepView                `json:"steps"`
	Record     domain.RegistrationRecord `json:"record"`
	Review     ReviewSummary             `json:"review"`
	Sync       SyncStatus                `json:"sync"`
	LastError  string                    `json:"lastError,omitempty"`
}

// View returns a snapshot of the wizard, its record and the sync status.
func (w *Wizard) View() WizardView {
	w.mu.Lock()
	index := w.index
	lastError := w.lastError
	record := w.assembler.Record()
	w.mu.Unlock()

	v := WizardView{
		Index:      index,
		StepCount:  len(w.steps),
		Complete:   index >= len(w.steps),
		Submitting: w.submitting.Load(),
		Record:     record,
		Review: ReviewSummary{
			PersonalInfoFields: len(record.PersonalInfo),
			Camps:              record.SelectedCampNames(),
		},
		Sync:      w.pusher.Status(),
		LastError: lastError,
	}
	if v.Complete {
		v.Label = CompleteLabel
	} else {
		v.Label = w.steps[index].Label
	}
	for i, step := range w.steps {
		missing := step.Missing(record)
		v.Steps = append(v.Steps, StepView{
			Index:   i,
			Label:   step.Label,
			Kind:    step.Kind,
			Valid:   len(missing) == 0,
			Current: i == index,
			Missing: missing,
		})
	}
	return v
}
