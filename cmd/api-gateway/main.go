package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/scolahub/scolarite-api/api/swagger"
	"github.com/scolahub/scolarite-api/internal/handler"
	"github.com/scolahub/scolarite-api/internal/middleware"
	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/internal/repository"
	"github.com/scolahub/scolarite-api/internal/service"
	"github.com/scolahub/scolarite-api/pkg/cache"
	"github.com/scolahub/scolarite-api/pkg/config"
	"github.com/scolahub/scolarite-api/pkg/database"
	"github.com/scolahub/scolarite-api/pkg/jobs"
	"github.com/scolahub/scolarite-api/pkg/logger"
	corsmiddleware "github.com/scolahub/scolarite-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scolahub/scolarite-api/pkg/middleware/requestid"
)

// @title Scolarite API
// @version 0.1.0
// @description Academic records service with transactional integrity checks
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	runner := database.NewTxRunner(db, logr, cfg.Tx.MaxRetries, cfg.Tx.Timeout)
	runner.OnRetry = metrics.ObserveTxRetry
	runner.OnExhausted = metrics.ObserveTxExhaustion

	validate := validator.New()

	yearRepo := repository.NewAcademicYearRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	userRepo := repository.NewUserRepository(db)

	refs := service.NewReferenceValidator()
	refs.Register(service.RefAcademicYear, yearRepo.Exists)
	refs.Register(service.RefSemester, semesterRepo.Exists)
	refs.Register(service.RefCourse, courseRepo.Exists)
	refs.Register(service.RefStudent, studentRepo.Exists)
	refs.Register(service.RefEnrollment, enrollmentRepo.Exists)

	guard := service.NewUniquenessGuard(service.UniquenessGuardParams{
		Enrollments: enrollmentRepo,
		Grades:      gradeRepo,
		Semesters:   semesterRepo,
		Years:       yearRepo,
		Courses:     courseRepo,
		Students:    studentRepo,
		Users:       userRepo,
	})

	cacheEnabled := cfg.Cache.Enabled
	var cacheRepo *repository.RedisCacheRepository
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, cache disabled", "error", err)
			cacheEnabled = false
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewRedisCacheRepository(redisClient)
		}
	}
	var cacheSvc *service.CacheService
	if cacheRepo != nil {
		cacheSvc = service.NewCacheService(cacheRepo, cacheEnabled, cfg.Cache.TTL, logr)
	} else {
		cacheSvc = service.NewCacheService(nil, false, cfg.Cache.TTL, logr)
	}

	audit := service.NewAuditService(userRepo, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Logger:     logr,
	}, logr)
	audit.Start(context.Background())
	defer audit.Stop()

	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, validate, logr)
	yearSvc := service.NewAcademicYearService(yearRepo, runner, guard, validate, logr).WithMetrics(metrics)
	semesterSvc := service.NewSemesterService(semesterRepo, runner, refs, guard, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, runner, guard, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, runner, guard, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, runner, refs, guard, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, runner, refs, guard, validate, logr)
	userSvc := service.NewUserService(userRepo, runner, refs, guard, audit, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	yearHandler := handler.NewAcademicYearHandler(yearSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, cacheSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, cacheSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleScolarite)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleScolarite, models.RoleStudent)

	years := protected.Group("/academic-years")
	years.Use(middleware.Audit(audit, "academic_years"))
	years.GET("", anyRole, yearHandler.List)
	years.GET("/:id", anyRole, yearHandler.Get)
	years.GET("/:id/details", anyRole, yearHandler.Details)
	if cfg.Exports.Enabled {
		years.GET("/:id/details/export", staff, yearHandler.Export)
	}
	years.POST("", staff, yearHandler.Create)
	years.PUT("/:id", staff, yearHandler.Update)
	years.DELETE("/:id", staff, yearHandler.Delete)

	semesters := protected.Group("/semesters")
	semesters.Use(middleware.Audit(audit, "semesters"))
	semesters.GET("", anyRole, semesterHandler.List)
	semesters.GET("/:id", anyRole, semesterHandler.Get)
	semesters.POST("", staff, semesterHandler.Create)
	semesters.PUT("/:id", staff, semesterHandler.Update)
	semesters.DELETE("/:id", staff, semesterHandler.Delete)

	courses := protected.Group("/courses")
	courses.Use(middleware.Audit(audit, "courses"))
	courses.GET("", anyRole, courseHandler.List)
	courses.GET("/:id", anyRole, courseHandler.Get)
	courses.POST("", staff, courseHandler.Create)
	courses.PUT("/:id", staff, courseHandler.Update)
	courses.DELETE("/:id", staff, courseHandler.Delete)

	students := protected.Group("/students")
	students.Use(middleware.Audit(audit, "students"))
	students.GET("", staff, studentHandler.List)
	students.GET("/:id", staff, studentHandler.Get)
	students.POST("", staff, studentHandler.Create)
	students.PUT("/:id", staff, studentHandler.Update)
	students.DELETE("/:id", staff, studentHandler.Delete)

	enrollments := protected.Group("/enrollments")
	enrollments.Use(middleware.Audit(audit, "enrollments"))
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.GET("/:id", staff, enrollmentHandler.Get)
	enrollments.POST("", staff, enrollmentHandler.Create)
	enrollments.PUT("/:id", staff, enrollmentHandler.Update)
	enrollments.DELETE("/:id", staff, enrollmentHandler.Delete)

	grades := protected.Group("/grades")
	grades.Use(middleware.Audit(audit, "grades"))
	grades.GET("", staff, gradeHandler.List)
	grades.GET("/:id", staff, gradeHandler.Get)
	grades.POST("", staff, gradeHandler.Create)
	grades.PUT("/:id", staff, gradeHandler.Update)
	grades.DELETE("/:id", staff, gradeHandler.Delete)

	users := protected.Group("/users")
	users.GET("", adminOnly, userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), userHandler.Get)
	users.POST("", adminOnly, userHandler.Create)
	users.PUT("/:id", adminOnly, userHandler.Update)
	users.POST("/:id/reset-password", adminOnly, userHandler.ResetPassword)
	users.DELETE("/:id", adminOnly, userHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
