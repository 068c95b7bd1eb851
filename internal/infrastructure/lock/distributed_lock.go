package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 购买/领取这类"同一用户重复提交"的场景，数据库唯一索引已经能兜底，
// 但锁能把重复请求挡在事务之外：后到的请求拿到第一次的结果而不是报错。
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（持锁进程崩溃时锁自动释放，防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查+删除"原子执行
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 场景：A 获取锁 -> A 处理超时，锁自动过期 -> B 获取锁 -> A 执行完毕调用 Unlock
// 如果不校验 value，A 会把 B 的锁删掉，所以用 Lua 脚本先比对再删除
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：业务维度的锁
// ============================================================================

// NewPurchaseLock 数据购买锁（按买家维度）
// 不同买家可以并发购买，同一买家的重复提交被串行化
func NewPurchaseLock(client *redis.Client, buyerID int64) *DistributedLock {
	key := fmt.Sprintf("market:lock:buyer:%d", buyerID)
	value := fmt.Sprintf("%d-%d", buyerID, time.Now().UnixNano())
	return NewDistributedLock(client, key, value, 30*time.Second)
}

// NewClaimLock 公告积分领取锁（按公告+用户维度）
func NewClaimLock(client *redis.Client, userID, notificationID int64) *DistributedLock {
	key := fmt.Sprintf("notification:lock:claim:%d:%d", notificationID, userID)
	value := fmt.Sprintf("%d-%d", userID, time.Now().UnixNano())
	return NewDistributedLock(client, key, value, 30*time.Second)
}
