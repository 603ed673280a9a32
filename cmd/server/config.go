package main

import "time"

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=3000"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	SocketBufferSize  int           `env:"SOCKET_BUFFER_SIZE,default=1024"`
	RoomMaxIdle       time.Duration `env:"ROOM_MAX_IDLE,default=168h"`
	RetentionInterval time.Duration `env:"RETENTION_INTERVAL,default=24h"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ModerationMask    string        `env:"MODERATION_MASK,default=*"`
}
