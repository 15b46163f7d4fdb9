package app

import (
	"context"
	"errors"

	"rxalert/internal/delivery"
	"rxalert/internal/notify"
	"rxalert/internal/runtime/supervisor"
)

var errNotReady = errors.New("engine not initialized")

type DeliveryStatus struct {
	Permission notify.Permission      `json:"permission"`
	Pending    int                    `json:"pending"`
	History    []delivery.HistoryItem `json:"history,omitempty"`
}

// Status is served on the debug /status endpoint.
type Status struct {
	Config     string               `json:"config,omitempty"`
	Engine     notify.Stats         `json:"engine"`
	Delivery   *DeliveryStatus      `json:"delivery,omitempty"`
	Supervisor *supervisor.Snapshot `json:"supervisor,omitempty"`
}

func (a *App) Status() Status {
	st := Status{Config: a.cfgPath, Engine: a.engine.Stats()}
	if a.disp != nil {
		st.Delivery = &DeliveryStatus{
			Permission: a.disp.Permission(),
			Pending:    a.disp.Pending(),
			History:    a.disp.History(),
		}
	}
	if a.sup != nil {
		snap := a.sup.Snapshot()
		st.Supervisor = &snap
	}
	return st
}

func (a *App) health(context.Context) error {
	if err := a.Err(); err != nil {
		return err
	}
	if !a.engine.Stats().Initialized {
		return errNotReady
	}
	return nil
}
