package mocks

//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/rxtech-lab/indicator-bot/internal/broker Broker
//go:generate mockgen -destination=./mock_notifier.go -package=mocks github.com/rxtech-lab/indicator-bot/internal/notify Notifier
