package services

import (
	"context"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
)

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()                  {}
func (nopMetrics) ConnectionClosed()                  {}
func (nopMetrics) RoomsActive(int)                    {}
func (nopMetrics) MessageReceived(domain.MessageType) {}
func (nopMetrics) MessageRelayed(domain.MessageType)  {}
func (nopMetrics) MessageDropped(string)              {}
func (nopMetrics) CallStarted()                       {}
func (nopMetrics) CallEnded(string)                   {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.Event) error { return nil }

var (
	_ ports.SignalMetrics  = nopMetrics{}
	_ ports.EventPublisher = nopPublisher{}
)
