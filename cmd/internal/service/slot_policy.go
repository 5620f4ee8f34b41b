package service

import (
	"time"

	"medibook/cmd/internal/utils"
	"medibook/cmd/internal/utils/apierror"
)

// SlotPolicy holds the clinic's booking hours. A nil policy accepts any
// instant and leaves exact-time collision as the only rule.
type SlotPolicy struct {
	Location  *time.Location
	Step      time.Duration
	OpenHour  int
	CloseHour int
	Horizon   time.Duration
}

func DefaultSlotPolicy(loc *time.Location) *SlotPolicy {
	return &SlotPolicy{
		Location:  loc,
		Step:      30 * time.Minute,
		OpenHour:  9,
		CloseHour: 17,
		Horizon:   30 * 24 * time.Hour,
	}
}

// Check validates an appointment time against now (both epoch millis).
func (p *SlotPolicy) Check(millis, now int64) apierror.ErrorResponse {
	if p == nil {
		return nil
	}
	if millis <= now {
		return apierror.AppointmentInPastError
	}
	if millis > now+p.Horizon.Milliseconds() {
		return apierror.BeyondHorizonError
	}

	local := time.UnixMilli(millis).In(p.Location)
	if !utils.IsStepAligned(local, p.Step) {
		return apierror.NewSlotNotAlignedError(p.Step)
	}
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return apierror.OutsideHoursError
	}

	// the last slot has to end by closing time
	minutes := local.Hour()*60 + local.Minute()
	if minutes < p.OpenHour*60 || minutes+int(p.Step.Minutes()) > p.CloseHour*60 {
		return apierror.OutsideHoursError
	}
	return nil
}
