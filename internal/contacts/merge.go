package contacts

import (
	"context"
	"errors"
	"sort"

	"otmsite/internal/models"
)

// statusUrgency orders statuses for merging; unknown statuses rank lowest.
var statusUrgency = map[models.ContactStatus]int{
	models.StatusNew:       3,
	models.StatusResponded: 2,
	models.StatusArchived:  1,
}

// MergeResult is the admin-facing outcome of a merge pass.
type MergeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MergeByEmail folds every group of threads sharing an address into the
// oldest thread of the group. It reports whether anything changed; a second
// run without new duplicates is a no-op.
func (s *Service) MergeByEmail(ctx context.Context) (bool, error) {
	merged := 0
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		merged = s.mergeDocument(doc)
		if merged == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info().Int("absorbed", merged).Msg("Merged contacts with the same email")
	return true, nil
}

// MergeChats runs a merge pass and describes the outcome for the admin panel.
func (s *Service) MergeChats(ctx context.Context) MergeResult {
	changed, err := s.MergeByEmail(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error merging chats")
		return MergeResult{Success: false, Message: "Error merging chats: " + err.Error()}
	}
	if changed {
		return MergeResult{Success: true, Message: "Successfully merged chats with the same email address"}
	}
	return MergeResult{Success: true, Message: "No chats needed to be merged"}
}

// mergeDocument merges doc in place and returns how many threads were absorbed.
func (s *Service) mergeDocument(doc *models.ContactDocument) int {
	groups := make(map[string][]int)
	var order []string
	for i, c := range doc.Contacts {
		email := s.emailOf(c)
		if email == "" {
			continue
		}
		if _, ok := groups[email]; !ok {
			order = append(order, email)
		}
		groups[email] = append(groups[email], i)
	}

	absorbed := make(map[int]bool)
	for _, email := range order {
		members := groups[email]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool {
			return doc.Contacts[members[a]].CreatedAt.Before(doc.Contacts[members[b]].CreatedAt)
		})

		survivor := &doc.Contacts[members[0]]
		status := survivor.Status
		lastUpdated := survivor.LastUpdated
		responses := append([]models.Response{}, survivor.Responses...)

		for _, idx := range members[1:] {
			other := doc.Contacts[idx]
			messageID := other.MessageID
			if messageID == "" {
				messageID = "merged-" + other.ID
			}
			responses = append(responses, models.Response{
				ID:        "merged-" + other.ID,
				From:      email,
				Content:   s.codec.Encrypt(s.codec.Decrypt(other.Message)),
				Timestamp: other.CreatedAt,
				MessageID: messageID,
			})
			responses = append(responses, other.Responses...)

			if statusUrgency[other.Status] > statusUrgency[status] {
				status = other.Status
			}
			if other.LastUpdated.After(lastUpdated) {
				lastUpdated = other.LastUpdated
			}
			absorbed[idx] = true
		}

		sort.SliceStable(responses, func(a, b int) bool {
			return responses[a].Timestamp.Before(responses[b].Timestamp)
		})
		survivor.Responses = responses
		survivor.Status = status
		survivor.LastUpdated = lastUpdated

		s.logger.Info().
			Str("contact_id", survivor.ID).
			Int("merged", len(members)-1).
			Str("email", models.RedactEmail(email)).
			Msg("Merging contacts with the same email")
	}

	if len(absorbed) == 0 {
		return 0
	}
	kept := doc.Contacts[:0]
	for i, c := range doc.Contacts {
		if !absorbed[i] {
			kept = append(kept, c)
		}
	}
	doc.Contacts = kept
	return len(absorbed)
}
