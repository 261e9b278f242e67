package router

import (
	"CloudVault/internal/handler"
	"CloudVault/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes. objects may be nil when the backend issues
// its own presigned URLs.
func InitRouter(files *handler.FileHandler, objects *handler.ObjectHandler, secret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.CORSMiddleware())

	if objects != nil {
		r.GET("/objects/:bucket/*key", objects.Serve)
		r.HEAD("/objects/:bucket/*key", objects.Serve)
	}

	api := r.Group("/api")
	api.Use(utils.AuthMiddleware(secret))
	{
		file := api.Group("/files")
		{
			file.GET("", files.List)
			file.POST("/base64", files.CreateBase64)
			file.POST("/upload", files.CreateMultipart)
			file.POST("/presign", files.Presign)
			file.GET("/:id", files.Get)
			file.PATCH("/:id", files.Rename)
			file.PUT("/:id/base64", files.UpdateBase64)
			file.PUT("/:id/upload", files.UpdateMultipart)
			file.GET("/:id/download", files.Download)
			file.DELETE("/:id", files.Delete)
		}

		api.GET("/objects", files.ListObjects)
		api.POST("/buckets", files.CreateBucket)
	}
	return r
}
