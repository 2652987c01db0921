package rabbitmq

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/redact"
)

// URL builds the AMQP connection URL for cfg.
func URL(cfg config.QueueConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/",
	}
	if cfg.VHost != "" && cfg.VHost != "/" {
		u.Path = "/" + cfg.VHost
		u.RawPath = "/" + url.PathEscape(cfg.VHost)
	}
	return u.String()
}

func dial(cfg config.QueueConfig) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(URL(cfg), amqp.Config{
		Heartbeat:  cfg.Heartbeat(),
		Properties: amqp.Table{"connection_name": "ragpipe"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %s", redact.URL(URL(cfg)), redact.Error(err))
	}
	return conn, nil
}

// declare ensures the durable task queue exists.
func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}
