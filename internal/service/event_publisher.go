package service

import "authority/internal/events"

type EventPublisher = events.Publisher
