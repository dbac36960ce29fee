// Package room 实现房间同步核心：连接注册表、房间管理器与更新序列器。
//
// 三个组件的职责：
//
//   - Registry：签发不可猜测的 ConnID，跟踪连接存活状态，并在注销时级联离开房间
//   - Manager：维护房间成员关系，首次加入时创建房间，成员清空时销毁房间
//   - Sequencer：为房间内的更新分配严格递增、无间隙的序号，并按序号顺序交付
//
// # 并发模型
//
// 不存在全局锁。房间保存在 sync.Map 中，每个房间持有两把锁：
//
//   - mu：保护成员集合与序号计数器
//   - deliverMu：交付区间锁，在释放 mu 之前获取，保证同一房间的扇出按序号进行
//
// 同一连接的 join/leave/unregister 由连接自身的锁串行化，加锁顺序固定为
// 连接 → 房间 mu → 房间 deliverMu。
//
// 扇出回调在 mu 释放之后执行，回调内不应进行阻塞的网络 I/O，
// 通常只把消息放入每个客户端的发送队列。回调持有 deliverMu，
// 因此不能同步调用 Registry 或 Manager（如驱逐慢客户端），需要异步处理。
package room
