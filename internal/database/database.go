// Package database 提供 MongoDB 连接以及基于 MongoDB 的访问控制
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/config"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

// Connect 建立连接池并确认数据库可达
func Connect(ctx context.Context, cfg *config.DatabaseConfig, appName string) (*Client, error) {
	logger.DebugF("Connecting to database %s:%d", cfg.Host, cfg.Port)

	databaseUrl := fmt.Sprintf("mongodb://%s:%d/?authSource=admin", cfg.Host, cfg.Port)
	if cfg.Username != "" {
		// 编码特殊字符
		databaseUrl = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
			url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
			cfg.Host, cfg.Port,
		)
	}

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	// 超时限制
	clientOptions.SetConnectTimeout(cfg.ConnectTimeoutDuration())
	clientOptions.SetTimeout(cfg.OperationTimeoutDuration())
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created, address: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed, address: %s, reason: %s", evt.Address, evt.Reason)
			}
		},
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeoutDuration())
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}
	// 验证连接
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	logger.InfoF("Database %s connected", cfg.Database)
	return &Client{
		client:           client,
		db:               client.Database(cfg.Database),
		operationTimeout: cfg.OperationTimeoutDuration(),
	}, nil
}

// ACLCollection 返回 name 集合，并确保 ACL 查询所需的索引存在
func (c *Client) ACLCollection(ctx context.Context, name string) (*mongo.Collection, error) {
	collection := c.db.Collection(name)

	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "action", Value: 1}},
		Options: options.Index().SetName(name + "_client_action"),
	})
	if err != nil {
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}
	return collection, nil
}

// Invoke 关闭连接池，供 event.Cleaner 调用
func (c *Client) Invoke(ctx context.Context) error {
	logger.Info("Closing database connection")
	return c.client.Disconnect(ctx)
}
