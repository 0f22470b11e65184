package repository

import "BinPull/internal/domain/models"

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) RecordTick(string, float64)                           {}
func (NopMetrics) RecordSignal(string, string, bool)                    {}
func (NopMetrics) RecordTrade(string, models.TradeResult, float64)      {}
func (NopMetrics) RecordBalance(string, float64)                        {}
func (NopMetrics) RecordMartingaleLevel(string, int)                    {}
func (NopMetrics) RecordConnectionPhase(string, models.ConnectionPhase) {}
func (NopMetrics) RecordEventDropped(string)                            {}
func (NopMetrics) RecordError(string)                                   {}
func (NopMetrics) RecordLatency(string, float64)                        {}
