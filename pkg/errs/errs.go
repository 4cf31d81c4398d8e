package errs

const (
	ErrorInternal     = 500000 //系统异常
	ErrorArgs         = 500001 //参数错误
	ErrorRegistry     = 510001 //注册中心访问失败（网络/超时/响应异常），可重试
	ErrorRegistration = 510002 //服务注册/注销失败
	ErrorLookup       = 510003 //服务查询失败
	ErrorClosed       = 510004 //命名服务已销毁
)
