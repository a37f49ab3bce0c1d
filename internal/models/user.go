package models

// User 代表系统中的一个用户账户。
// 用户的创建与认证由外部的登录服务负责，worker 只做只读解析。
type User struct {
	ID          string `bson:"_id" json:"id"`
	FirebaseUID string `bson:"firebase_uid" json:"firebase_uid"`
	Email       string `bson:"email" json:"email"`
}
