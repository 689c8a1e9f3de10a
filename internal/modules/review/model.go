// README: Review aggregate and the rating mean it feeds.
package review

import (
	"fmt"
	"time"

	"seatshare/internal/apperr"
	"seatshare/internal/types"
)

const (
	MinRating     = 1
	MaxRating     = 5
	MaxCommentLen = 1000
)

type Review struct {
	ID             types.ID  `json:"id"`
	RideID         types.ID  `json:"ride_id"`
	ReviewerID     string    `json:"reviewer_id"`
	ReviewedUserID string    `json:"reviewed_user_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Mean is the unweighted average over every rating a user ever received.
func Mean(ratings []int) (float64, bool) {
	if len(ratings) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings)), true
}

var (
	ErrDuplicate       = fmt.Errorf("%w: this ride was already reviewed for that user", apperr.ErrDuplicateReview)
	errSelfReview      = apperr.Invalid("reviewed_user_id", "cannot review yourself")
	errReviewerOutside = apperr.Invalid("ride_id", "reviewer did not take part in this ride")
	errReviewedOutside = apperr.Invalid("reviewed_user_id", "reviewed user did not take part in this ride")
)
