// Package rabbitmq connects the task pipeline to a RabbitMQ durable queue.
//
// Client publishes persistent messages with publisher confirms and reports queue
// depth. Consumer opens a dedicated connection per Consume call, applies the prefetch
// limit and exposes deliveries with manual acknowledgment as task.Delivery values.
package rabbitmq
