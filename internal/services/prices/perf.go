package prices

import (
	"fmt"

	"github.com/ternarybob/datlens/internal/common"
	"github.com/ternarybob/datlens/internal/models"
)

// PctChange formats the percentage move from base to other with two decimals
// and a trailing "%". Either price missing, or a zero base, yields "N/A".
func PctChange(base, other models.Price) string {
	if !base.Valid || !other.Valid || base.Value == 0 {
		return common.NotAvailable
	}
	return fmt.Sprintf("%.2f%%", (other.Value-base.Value)/base.Value*100)
}
