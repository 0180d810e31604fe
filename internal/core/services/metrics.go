package services

import "time"

// NopMetrics discards relay metrics.
type NopMetrics struct{}

func (NopMetrics) RecordOperation(op, outcome string)                            {}
func (NopMetrics) RecordPublish(event string, duration time.Duration, err error) {}
func (NopMetrics) RecordAuthorization(namespace string, allowed bool)            {}
func (NopMetrics) SessionOpened()                                                {}
func (NopMetrics) SessionClosed()                                                {}
